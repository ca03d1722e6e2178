// Command databank serves and queries the data bank's tables.
package main

import "os"

func main() {
	os.Exit(Execute())
}
