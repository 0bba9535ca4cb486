package govee

import (
  "github.com/robertof/govee-capture/device"
)

const (
  // Govee's manufacturer ID as seen in H5051 advertisements (0xEC88).
  ManufacturerID uint16 = 60552

  H5051Prefix = "Govee_H5051_"
  VendorName = "Govee"
)

// H5051 matches only advertisements whose local name is anchored on the model prefix.
func H5051() device.Profile {
  return device.Profile{
    Name: "H5051",
    Pattern: H5051Prefix,
    Mode: device.MatchPrefix,
    ManufacturerID: ManufacturerID,
    Layout: device.DefaultLayout,
  }
}

// Any matches every advertisement whose name mentions the vendor. Looser than H5051 and
// useful when the model suffix is unknown.
func Any() device.Profile {
  return device.Profile{
    Name: "Govee",
    Pattern: VendorName,
    Mode: device.MatchContains,
    ManufacturerID: ManufacturerID,
    Layout: device.DefaultLayout,
  }
}
