package main

import "github.com/vwsync/vwldap-sync/cmd"

func main() {
	cmd.Execute()
}
