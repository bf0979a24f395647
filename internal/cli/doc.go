// Package cli implements the lexhost command line.
//
// The root command runs the server; subcommands expose the same pieces for
// operators: a one-shot provisioning pass, ad-hoc queries and asset reads
// against the provisioned files, and bearer token minting.
package cli
