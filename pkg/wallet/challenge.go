// Package wallet holds the wallet side of the sign-in protocol: the challenge
// text both parties must agree on byte for byte, recovery of the signer from a
// personal_sign signature, and a local key signer standing in for a browser
// wallet.
package wallet

// ChallengeMessage is the text a wallet signs to prove key ownership. The
// address is embedded exactly as given; the server must build it from the same
// value the client signed with.
func ChallengeMessage(accountAddress string) string {
	return "Welcome to Abstrio!\n" +
		"\n" +
		"Click to sign in and accept the Terms of Service and Privacy Policy.\n" +
		"\n" +
		"This request will not trigger a blockchain transaction or cost any gas fees.\n" +
		"\n" +
		"Wallet address: " + accountAddress
}
