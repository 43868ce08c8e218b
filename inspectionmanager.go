/*
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"encoding/json"
	"fmt"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// InspectionManager owns inspection records and keeps batch status
// consistent with inspection outcomes. Authorization is delegated to
// the batch registry's roster on every check; the manager never keeps
// a roster of its own.
type InspectionManager struct {
	contractapi.Contract
	registry *BatchRegistry
}

// NewInspectionManager wires the manager to the registry it drives.
func NewInspectionManager(registry *BatchRegistry) *InspectionManager {
	return &InspectionManager{registry: registry}
}

// Initialize records the deploying identity as manager owner and the
// registry handle the manager is bound to.
func (m *InspectionManager) Initialize(ctx contractapi.TransactionContextInterface) error {
	existing, err := ctx.GetStub().GetState(managerOwnerKey)
	if err != nil {
		return fmt.Errorf("failed to read manager owner: %v", err)
	}
	if existing != nil {
		return fmt.Errorf("%w: inspection manager already initialized", ErrInvalidState)
	}
	caller, err := callerID(ctx)
	if err != nil {
		return err
	}
	if err := ctx.GetStub().PutState(managerOwnerKey, []byte(caller)); err != nil {
		return fmt.Errorf("failed to store manager owner: %v", err)
	}
	name := m.registry.Name
	if name == "" {
		name = "BatchRegistry"
	}
	return ctx.GetStub().PutState(managerRegistryKey, []byte(name))
}

// CreateInspection opens an inspection against a PENDING batch. The
// caller must be on the registry's inspector roster and becomes the
// record's immutable creator.
func (m *InspectionManager) CreateInspection(ctx contractapi.TransactionContextInterface, batchIDStr, fileURL, notes string) (uint64, error) {
	batchID, err := parseID(batchIDStr)
	if err != nil {
		return 0, err
	}
	caller, err := callerID(ctx)
	if err != nil {
		return 0, err
	}
	authorized, err := m.registry.IsAuthorizedInspector(ctx, caller)
	if err != nil {
		return 0, err
	}
	if !authorized {
		return 0, fmt.Errorf("%w: caller is not an authorized inspector", ErrUnauthorized)
	}
	batch, err := m.registry.loadBatch(ctx, batchID)
	if err != nil {
		return 0, err
	}
	if batch.Status != BatchStatusPending {
		return 0, fmt.Errorf("%w: batch %d is %s, inspections may only be opened against PENDING batches", ErrInvalidState, batchID, batch.Status)
	}

	now, err := txTime(ctx)
	if err != nil {
		return 0, err
	}
	id, err := nextSequence(ctx, "INSPECTION")
	if err != nil {
		return 0, err
	}
	inspection := Inspection{
		ID:             id,
		BatchID:        batchID,
		Inspector:      caller,
		Result:         ResultPending,
		FileURL:        fileURL,
		Notes:          notes,
		InspectionDate: now,
		CreatedAt:      now,
		UpdatedAt:      now,
		Exists:         true,
	}
	if err := putJSON(ctx, inspectionKey(id), inspection); err != nil {
		return 0, err
	}
	if err := appendIDIndex(ctx, inspBatchIndexKey(batchID), id); err != nil {
		return 0, err
	}
	if err := appendIDIndex(ctx, inspByUserKeyPrefix+caller, id); err != nil {
		return 0, err
	}
	if err := emitEvent(ctx, EventInspectionCreated, InspectionCreatedEvent{InspectionID: id, BatchID: batchID, Inspector: caller}); err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateInspectionResult records a new result on an open inspection.
// Only the record's creator may call it. A terminal result is one-shot:
// setting PASSED or FAILED synchronizes the batch and freezes the
// record, and any further update is rejected.
func (m *InspectionManager) UpdateInspectionResult(ctx contractapi.TransactionContextInterface, inspectionIDStr, resultStr, notes string) error {
	inspectionID, err := parseID(inspectionIDStr)
	if err != nil {
		return err
	}
	result, ok := parseInspectionResult(resultStr)
	if !ok {
		return fmt.Errorf("%w: unknown inspection result %q", ErrValidation, resultStr)
	}
	inspection, err := m.loadInspection(ctx, inspectionID)
	if err != nil {
		return err
	}
	caller, err := callerID(ctx)
	if err != nil {
		return err
	}
	if caller != inspection.Inspector {
		return fmt.Errorf("%w: only the inspection's creator may update it", ErrUnauthorized)
	}
	if inspection.Result.terminal() {
		return fmt.Errorf("%w: inspection %d is already %s", ErrInvalidState, inspectionID, inspection.Result)
	}
	if result.terminal() {
		// Validate the full synchronization chain before any write so a
		// rejected transition leaves no partial effect.
		if err := m.checkSyncable(ctx, inspection.BatchID); err != nil {
			return err
		}
	}

	now, err := txTime(ctx)
	if err != nil {
		return err
	}
	old := inspection.Result
	inspection.Result = result
	if notes != "" {
		inspection.Notes = notes
	}
	inspection.UpdatedAt = now
	if err := putJSON(ctx, inspectionKey(inspectionID), inspection); err != nil {
		return err
	}
	if err := emitEvent(ctx, EventInspectionUpdated, InspectionUpdatedEvent{InspectionID: inspectionID, OldResult: old, NewResult: result}); err != nil {
		return err
	}
	if !result.terminal() {
		return nil
	}
	if err := m.syncBatchStatus(ctx, inspection); err != nil {
		return err
	}
	return emitEvent(ctx, EventInspectionCompleted, InspectionCompletedEvent{InspectionID: inspectionID, BatchID: inspection.BatchID, Result: result})
}

// CompleteInspection closes an inspection with a terminal result and
// drives the batch to its final status. Only the creator may complete,
// only PASSED or FAILED are valid completions, and a completed
// inspection can never be completed again.
func (m *InspectionManager) CompleteInspection(ctx contractapi.TransactionContextInterface, inspectionIDStr, resultStr, fileURL, notes string) error {
	inspectionID, err := parseID(inspectionIDStr)
	if err != nil {
		return err
	}
	result, ok := parseInspectionResult(resultStr)
	if !ok || !result.terminal() {
		return fmt.Errorf("%w: completion result must be PASSED or FAILED, got %q", ErrValidation, resultStr)
	}
	inspection, err := m.loadInspection(ctx, inspectionID)
	if err != nil {
		return err
	}
	caller, err := callerID(ctx)
	if err != nil {
		return err
	}
	if caller != inspection.Inspector {
		return fmt.Errorf("%w: only the inspection's creator may complete it", ErrUnauthorized)
	}
	if inspection.Result != ResultPending {
		return fmt.Errorf("%w: inspection %d is already %s", ErrInvalidState, inspectionID, inspection.Result)
	}
	if err := m.checkSyncable(ctx, inspection.BatchID); err != nil {
		return err
	}

	now, err := txTime(ctx)
	if err != nil {
		return err
	}
	inspection.Result = result
	inspection.FileURL = fileURL
	inspection.Notes = notes
	inspection.InspectionDate = now
	inspection.UpdatedAt = now
	if err := putJSON(ctx, inspectionKey(inspectionID), inspection); err != nil {
		return err
	}
	if err := m.syncBatchStatus(ctx, inspection); err != nil {
		return err
	}
	return emitEvent(ctx, EventInspectionCompleted, InspectionCompletedEvent{InspectionID: inspectionID, BatchID: inspection.BatchID, Result: result})
}

// checkSyncable verifies the batch can absorb a completed inspection:
// it must exist and still be PENDING, since the registry's transition
// table only admits PENDING -> INSPECTED as the first step.
func (m *InspectionManager) checkSyncable(ctx contractapi.TransactionContextInterface, batchID uint64) error {
	batch, err := m.registry.loadBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if batch.Status != BatchStatusPending {
		return fmt.Errorf("%w: batch %d is %s, its status can no longer be synchronized", ErrInvalidState, batchID, batch.Status)
	}
	return nil
}

// syncBatchStatus propagates a terminal inspection result into the
// batch's status. The registry forbids skipping INSPECTED, so the
// PENDING -> INSPECTED step is always issued first, then the terminal
// step. Both steps share this transaction, so they commit or abort
// together with the inspection write.
func (m *InspectionManager) syncBatchStatus(ctx contractapi.TransactionContextInterface, inspection *Inspection) error {
	target := BatchStatusInspected
	switch inspection.Result {
	case ResultPassed:
		target = BatchStatusApproved
	case ResultFailed:
		target = BatchStatusRejected
	}

	batch, err := m.registry.loadBatch(ctx, inspection.BatchID)
	if err != nil {
		return err
	}
	if err := m.registry.applyStatusTransition(ctx, batch, BatchStatusInspected); err != nil {
		return err
	}
	if target != BatchStatusInspected {
		if err := m.registry.applyStatusTransition(ctx, batch, target); err != nil {
			return err
		}
	}
	return emitEvent(ctx, EventBatchStatusSynced, BatchStatusSyncedEvent{BatchID: batch.ID, InspectionID: inspection.ID, TargetStatus: target})
}

// GetInspection retrieves an inspection by id.
func (m *InspectionManager) GetInspection(ctx contractapi.TransactionContextInterface, inspectionIDStr string) (*Inspection, error) {
	inspectionID, err := parseID(inspectionIDStr)
	if err != nil {
		return nil, err
	}
	return m.loadInspection(ctx, inspectionID)
}

func (m *InspectionManager) loadInspection(ctx contractapi.TransactionContextInterface, inspectionID uint64) (*Inspection, error) {
	raw, err := ctx.GetStub().GetState(inspectionKey(inspectionID))
	if err != nil {
		return nil, fmt.Errorf("failed to read inspection %d: %v", inspectionID, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: inspection %d does not exist", ErrNotFound, inspectionID)
	}
	var inspection Inspection
	if err := json.Unmarshal(raw, &inspection); err != nil {
		return nil, fmt.Errorf("failed to unmarshal inspection %d: %v", inspectionID, err)
	}
	return &inspection, nil
}

// GetBatchInspections lists inspection ids recorded against a batch,
// oldest first.
func (m *InspectionManager) GetBatchInspections(ctx contractapi.TransactionContextInterface, batchIDStr string) ([]uint64, error) {
	batchID, err := parseID(batchIDStr)
	if err != nil {
		return nil, err
	}
	return readIDIndex(ctx, inspBatchIndexKey(batchID))
}

// GetInspectorInspections lists inspection ids created by an inspector.
func (m *InspectionManager) GetInspectorInspections(ctx contractapi.TransactionContextInterface, inspector string) ([]uint64, error) {
	return readIDIndex(ctx, inspByUserKeyPrefix+inspector)
}

// GetLatestInspectionResult returns the result of the most recently
// created inspection for a batch, or PENDING if the batch has none.
func (m *InspectionManager) GetLatestInspectionResult(ctx contractapi.TransactionContextInterface, batchIDStr string) (InspectionResult, error) {
	ids, err := m.GetBatchInspections(ctx, batchIDStr)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return ResultPending, nil
	}
	inspection, err := m.loadInspection(ctx, ids[len(ids)-1])
	if err != nil {
		return "", err
	}
	return inspection.Result, nil
}

// GetTotalInspections returns how many inspections have ever been
// created.
func (m *InspectionManager) GetTotalInspections(ctx contractapi.TransactionContextInterface) (uint64, error) {
	return currentSequence(ctx, "INSPECTION")
}

// IsAuthorizedInspector delegates to the registry's roster. The
// registry is the single source of truth; the manager keeps no copy.
func (m *InspectionManager) IsAuthorizedInspector(ctx contractapi.TransactionContextInterface, identity string) (bool, error) {
	return m.registry.IsAuthorizedInspector(ctx, identity)
}

// AuthorizeInspector delegates to the registry, which enforces its
// owner check.
func (m *InspectionManager) AuthorizeInspector(ctx contractapi.TransactionContextInterface, identity string) error {
	return m.registry.AuthorizeInspector(ctx, identity)
}

// RevokeInspector delegates to the registry, which enforces its owner
// check.
func (m *InspectionManager) RevokeInspector(ctx contractapi.TransactionContextInterface, identity string) error {
	return m.registry.RevokeInspector(ctx, identity)
}

// UpdateBatchRegistry repoints the stored registry handle. Owner-only.
// Existing inspections keep their batch ids with no back-reference
// validation against the new registry, so callers must treat this as a
// breaking configuration change.
func (m *InspectionManager) UpdateBatchRegistry(ctx contractapi.TransactionContextInterface, name string) error {
	if name == "" {
		return fmt.Errorf("%w: registry name must be non-empty", ErrValidation)
	}
	if err := m.requireOwner(ctx); err != nil {
		return err
	}
	old, err := m.GetBatchRegistryAddress(ctx)
	if err != nil {
		return err
	}
	if err := ctx.GetStub().PutState(managerRegistryKey, []byte(name)); err != nil {
		return fmt.Errorf("failed to store registry handle: %v", err)
	}
	return emitEvent(ctx, EventBatchRegistryUpdated, BatchRegistryUpdatedEvent{OldRegistry: old, NewRegistry: name})
}

// GetBatchRegistryAddress returns the registry handle the manager is
// bound to.
func (m *InspectionManager) GetBatchRegistryAddress(ctx contractapi.TransactionContextInterface) (string, error) {
	raw, err := ctx.GetStub().GetState(managerRegistryKey)
	if err != nil {
		return "", fmt.Errorf("failed to read registry handle: %v", err)
	}
	if raw == nil {
		return "", fmt.Errorf("%w: inspection manager is not initialized", ErrInvalidState)
	}
	return string(raw), nil
}

func (m *InspectionManager) requireOwner(ctx contractapi.TransactionContextInterface) error {
	owner, err := ctx.GetStub().GetState(managerOwnerKey)
	if err != nil {
		return fmt.Errorf("failed to read manager owner: %v", err)
	}
	if owner == nil {
		return fmt.Errorf("%w: inspection manager is not initialized", ErrInvalidState)
	}
	caller, err := callerID(ctx)
	if err != nil {
		return err
	}
	if caller != string(owner) {
		return fmt.Errorf("%w: only the manager owner may repoint the registry", ErrUnauthorized)
	}
	return nil
}
