package main

import "idm-reconciler/cmd"

func main() {
	cmd.Execute()
}
