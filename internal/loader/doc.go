// Package loader registers MCP servers from YAML definition files.
//
// Each *.yaml or *.yml file in the servers directory holds one
// RegisterServerRequest:
//
//	name: github
//	transport_type: stdio
//	connection_config:
//	  command: github-mcp-server
//	  args: [stdio]
//	  env:
//	    GITHUB_TOKEN: '{{ env "GITHUB_TOKEN" }}'
//	auto_connect: true
//
// When name is omitted the file name without extension is used. Files are
// registered once at startup and again whenever fsnotify reports a create
// or write. A server that is already registered is left untouched, and
// deleting a file never removes a server; removal goes through the API.
package loader
