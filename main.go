package main

import "github.com/dsrph/payment-disbursement/cmd"

func main() {
	cmd.Execute()
}
