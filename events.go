/*
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"encoding/json"
	"fmt"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// Ledger event names, one per state change. External indexers treat
// the stored log as the authoritative audit trail.
const (
	EventBatchCreated         = "BatchCreated"
	EventBatchStatusUpdated   = "BatchStatusUpdated"
	EventInspectorAuthorized  = "InspectorAuthorized"
	EventInspectorRevoked     = "InspectorRevoked"
	EventInspectionCreated    = "InspectionCreated"
	EventInspectionUpdated    = "InspectionUpdated"
	EventInspectionCompleted  = "InspectionCompleted"
	EventBatchStatusSynced    = "BatchStatusSynced"
	EventBatchRegistryUpdated = "BatchRegistryUpdated"
)

// EventRecord is one entry of the append-only audit log kept in world
// state. Fabric only delivers the last SetEvent of a transaction to
// listeners, so multi-event operations rely on this log for
// exactly-once, in-order consumption.
type EventRecord struct {
	Seq       uint64          `json:"seq"`
	Name      string          `json:"name"`
	Actor     string          `json:"actor"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

type BatchCreatedEvent struct {
	BatchID     uint64 `json:"batchId"`
	BatchNumber string `json:"batchNumber"`
	Owner       string `json:"owner"`
}

type BatchStatusUpdatedEvent struct {
	BatchID   uint64      `json:"batchId"`
	OldStatus BatchStatus `json:"oldStatus"`
	NewStatus BatchStatus `json:"newStatus"`
}

type InspectorAuthorizedEvent struct {
	Inspector string `json:"inspector"`
}

type InspectorRevokedEvent struct {
	Inspector string `json:"inspector"`
}

type InspectionCreatedEvent struct {
	InspectionID uint64 `json:"inspectionId"`
	BatchID      uint64 `json:"batchId"`
	Inspector    string `json:"inspector"`
}

type InspectionUpdatedEvent struct {
	InspectionID uint64           `json:"inspectionId"`
	OldResult    InspectionResult `json:"oldResult"`
	NewResult    InspectionResult `json:"newResult"`
}

type InspectionCompletedEvent struct {
	InspectionID uint64           `json:"inspectionId"`
	BatchID      uint64           `json:"batchId"`
	Result       InspectionResult `json:"result"`
}

type BatchStatusSyncedEvent struct {
	BatchID      uint64      `json:"batchId"`
	InspectionID uint64      `json:"inspectionId"`
	TargetStatus BatchStatus `json:"targetStatus"`
}

type BatchRegistryUpdatedEvent struct {
	OldRegistry string `json:"oldRegistry"`
	NewRegistry string `json:"newRegistry"`
}

// emitEvent appends a record to the audit log and raises a chaincode
// event of the same name as a listener notification.
func emitEvent(ctx contractapi.TransactionContextInterface, name string, payload interface{}) error {
	actor, err := callerID(ctx)
	if err != nil {
		return err
	}
	ts, err := txTime(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %v", name, err)
	}
	seq, err := nextSequence(ctx, "EVENT")
	if err != nil {
		return err
	}
	rec := EventRecord{Seq: seq, Name: name, Actor: actor, Timestamp: ts, Payload: raw}
	recBytes, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %v", name, err)
	}
	if err := ctx.GetStub().PutState(eventKey(seq), recBytes); err != nil {
		return fmt.Errorf("failed to append %s to event log: %v", name, err)
	}
	return ctx.GetStub().SetEvent(name, recBytes)
}
