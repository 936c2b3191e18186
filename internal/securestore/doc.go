// Package securestore persists secrets under well-known keys.
//
// Two backends are provided:
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, Secret Service)
//   - File: a JSON map in a 0600 file, written atomically, for hosts without a keyring
//
// The OAuth session manager is the only writer.
package securestore
