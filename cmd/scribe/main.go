// Scribe is a privacy-preserving sharing router for conversational agents.
//
// It routes raw conversation turns into the spaces a user belongs to,
// applying each space's disclosure policy: relevance classification,
// content transformation, exclusion vetoes, and human approval for
// sensitive disclosures. Only filtered documents are ever persisted into
// a space; raw turns never leave the author's trust boundary.
//
// Usage:
//
//	# Start the router with default configuration
//	scribe run
//
//	# Start with a configuration file
//	scribe run --config /etc/scribe/config.yaml
//
//	# Validate configuration without starting
//	scribe validate --config /etc/scribe/config.yaml
//
//	# Show version information
//	scribe version
package main

func main() {
	Execute()
}
