// Command parcelmap is a terminal client for parcel search on a map.
package main

import "github.com/MeKo-Tech/parcelmap/internal/cmd"

func main() {
	cmd.Execute()
}
