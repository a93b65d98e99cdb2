// Command cjeu-harvester incrementally harvests CJEU case law.
package main

import (
	"github.com/JakeFAU/cjeu-harvester/cmd"
)

func main() {
	cmd.Execute()
}
