// ./main.go
package main

import (
	"github.com/xkilldash9x/operant/cmd"
)

func main() {
	cmd.Execute()
}
