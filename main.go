// arisen-vault manages elliptic-curve signing keys for Arisen: generation,
// import, retirement, metadata, and digest signing over a local secure store.
package main

import (
	"github.com/ArisenIO/vault-cli/cmd"
)

func main() {
	cmd.Execute()
}
