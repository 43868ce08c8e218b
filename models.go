package main

// BatchStatus is the lifecycle state of a batch.
type BatchStatus string

const (
	BatchStatusPending   BatchStatus = "PENDING"
	BatchStatusInspected BatchStatus = "INSPECTED"
	BatchStatusApproved  BatchStatus = "APPROVED"
	BatchStatusRejected  BatchStatus = "REJECTED"
)

// InspectionResult is the outcome recorded on an inspection.
type InspectionResult string

const (
	ResultPending      InspectionResult = "PENDING"
	ResultPassed       InspectionResult = "PASSED"
	ResultFailed       InspectionResult = "FAILED"
	ResultNeedsRecheck InspectionResult = "NEEDS_RECHECK"
)

// Batch represents a tracked food batch
type Batch struct {
	ID          uint64      `json:"id"`
	BatchNumber string      `json:"batchNumber"`
	ProductName string      `json:"productName"`
	Origin      string      `json:"origin"`
	Quantity    uint64      `json:"quantity"`
	Unit        string      `json:"unit"`
	HarvestDate int64       `json:"harvestDate"`
	ExpiryDate  int64       `json:"expiryDate"`
	Status      BatchStatus `json:"status"`
	Owner       string      `json:"owner"`
	CreatedAt   int64       `json:"createdAt"`
	UpdatedAt   int64       `json:"updatedAt"`
	Exists      bool        `json:"exists"`
}

// Inspection represents one inspector's assessment of a batch
type Inspection struct {
	ID             uint64           `json:"id"`
	BatchID        uint64           `json:"batchId"`
	Inspector      string           `json:"inspector"`
	Result         InspectionResult `json:"result"`
	FileURL        string           `json:"fileUrl"`
	Notes          string           `json:"notes"`
	InspectionDate int64            `json:"inspectionDate"`
	CreatedAt      int64            `json:"createdAt"`
	UpdatedAt      int64            `json:"updatedAt"`
	Exists         bool             `json:"exists"`
}

// InspectorRecord is a roster entry for an authorized inspector
type InspectorRecord struct {
	Identity     string `json:"identity"`
	AuthorizedBy string `json:"authorizedBy"`
	AuthorizedAt int64  `json:"authorizedAt"`
}

func parseBatchStatus(s string) (BatchStatus, bool) {
	switch BatchStatus(s) {
	case BatchStatusPending, BatchStatusInspected, BatchStatusApproved, BatchStatusRejected:
		return BatchStatus(s), true
	}
	return "", false
}

func parseInspectionResult(s string) (InspectionResult, bool) {
	switch InspectionResult(s) {
	case ResultPending, ResultPassed, ResultFailed, ResultNeedsRecheck:
		return InspectionResult(s), true
	}
	return "", false
}

// terminal reports whether a result closes an inspection.
func (r InspectionResult) terminal() bool {
	return r == ResultPassed || r == ResultFailed
}
