// Package profile stores named gateway endpoints for the CLI, so a user
// can switch between gateways without repeating --endpoint.
//
// Profiles live in ~/.config/mcpgateway/profiles.yaml:
//
//	current: staging
//	profiles:
//	  - name: local
//	    endpoint: http://127.0.0.1:8090
//	  - name: staging
//	    endpoint: https://gateway.staging.example.com
//	    output: wide
//
// Endpoint resolution order for client commands: an explicit --endpoint,
// then --profile, then MCPGATEWAY_PROFILE, then the current profile, then
// MCPGATEWAY_ENDPOINT and finally the built-in default.
package profile
