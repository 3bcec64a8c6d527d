// netdump fetches URLs through the netdump interceptor and inspects the
// transcripts it stored.
//
// Usage:
//
//	# Fetch a URL and record the exchange with bodies
//	netdump get https://api.example.com/v1/status
//
//	# List stored transcripts, oldest first
//	netdump ls
//
//	# Print one transcript
//	netdump cat 5d41402abc4b2a76b9719d911017c592
//
//	# Use a configuration file
//	netdump ls --config netdump.yaml
package main

func main() {
	Execute()
}
