// Command casebridge bridges a case-management host and Slack: it mirrors
// investigations into channels, relays chat back as case notes, and routes
// entitlement approvals.
package main

func main() {
	Execute()
}
