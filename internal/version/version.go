// ABOUTME: Version information for exjack
// ABOUTME: Reported in remote hellos, the status endpoint and -version
package version

const (
	// Version is the release version
	Version = "0.3.0"

	// Product is the product name
	Product = "exjack"

	// Manufacturer is reported alongside the product name
	Manufacturer = "exjack contributors"
)

// String returns "product version"
func String() string {
	return Product + " " + Version
}
