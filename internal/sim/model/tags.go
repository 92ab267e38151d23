package model

// Tag keys shared across agent kinds. Behaviors publish their interesting
// internals under these keys so snapshot diffs and the broker's candidate
// discovery read one vocabulary.
const (
	TagNode     = "node"     // current graph node
	TagStatus   = "status"   // behavior-specific phase, e.g. TruckIdle
	TagCapacity = "capacity" // truck cargo capacity (decimal string)
	TagPackage  = "package"  // package currently assigned or carried
	TagBalance  = "balance"  // broker balance in ducats ("%.2f")
	TagBuilding = "building" // site building kind
)

// Truck status tag values.
const (
	TruckIdle       = "idle"
	TruckCommitted  = "committed" // accepted, waiting for assignment_confirmed
	TruckToPickup   = "to_pickup"
	TruckAtPickup   = "at_pickup"
	TruckToDelivery = "to_delivery"
	TruckAtDelivery = "at_delivery"
)
