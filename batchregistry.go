/*
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// BatchRegistry is the canonical store of batches and the inspector
// roster. It owns the batch status state machine; no caller can move a
// batch except through UpdateBatchStatus or the inspection manager's
// synchronization path.
type BatchRegistry struct {
	contractapi.Contract
}

// Initialize records the deploying identity as registry owner. The
// owner manages the inspector roster.
func (r *BatchRegistry) Initialize(ctx contractapi.TransactionContextInterface) error {
	existing, err := ctx.GetStub().GetState(registryOwnerKey)
	if err != nil {
		return fmt.Errorf("failed to read registry owner: %v", err)
	}
	if existing != nil {
		return fmt.Errorf("%w: registry already initialized", ErrInvalidState)
	}
	caller, err := callerID(ctx)
	if err != nil {
		return err
	}
	return ctx.GetStub().PutState(registryOwnerKey, []byte(caller))
}

// CreateBatch registers a new batch owned by the caller. Numeric
// arguments arrive as decimal strings because chaincode args are
// strings; dates are unix seconds.
func (r *BatchRegistry) CreateBatch(ctx contractapi.TransactionContextInterface, batchNumber, productName, origin, quantityStr, unit, harvestDateStr, expiryDateStr string) (uint64, error) {
	if batchNumber == "" || productName == "" || origin == "" || unit == "" {
		return 0, fmt.Errorf("%w: batch number, product name, origin and unit must be non-empty", ErrValidation)
	}
	quantity, err := strconv.ParseUint(quantityStr, 10, 64)
	if err != nil || quantity == 0 {
		return 0, fmt.Errorf("%w: quantity must be a positive integer, got %q", ErrValidation, quantityStr)
	}
	harvestDate, err := strconv.ParseInt(harvestDateStr, 10, 64)
	if err != nil || harvestDate <= 0 {
		return 0, fmt.Errorf("%w: harvest date must be a positive unix timestamp, got %q", ErrValidation, harvestDateStr)
	}
	expiryDate, err := strconv.ParseInt(expiryDateStr, 10, 64)
	if err != nil || expiryDate <= harvestDate {
		return 0, fmt.Errorf("%w: expiry date must be after harvest date, got %q", ErrValidation, expiryDateStr)
	}

	caller, err := callerID(ctx)
	if err != nil {
		return 0, err
	}
	now, err := txTime(ctx)
	if err != nil {
		return 0, err
	}
	id, err := nextSequence(ctx, "BATCH")
	if err != nil {
		return 0, err
	}

	batch := Batch{
		ID:          id,
		BatchNumber: batchNumber,
		ProductName: productName,
		Origin:      origin,
		Quantity:    quantity,
		Unit:        unit,
		HarvestDate: harvestDate,
		ExpiryDate:  expiryDate,
		Status:      BatchStatusPending,
		Owner:       caller,
		CreatedAt:   now,
		UpdatedAt:   now,
		Exists:      true,
	}
	if err := putJSON(ctx, batchKey(id), batch); err != nil {
		return 0, err
	}
	if err := appendIDIndex(ctx, batchOwnerKeyPrefix+caller, id); err != nil {
		return 0, err
	}
	if err := emitEvent(ctx, EventBatchCreated, BatchCreatedEvent{BatchID: id, BatchNumber: batchNumber, Owner: caller}); err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateBatchStatus advances a batch along the status state machine.
// Only rostered inspectors may call it.
func (r *BatchRegistry) UpdateBatchStatus(ctx contractapi.TransactionContextInterface, batchIDStr, newStatusStr string) error {
	batchID, err := parseID(batchIDStr)
	if err != nil {
		return err
	}
	newStatus, ok := parseBatchStatus(newStatusStr)
	if !ok {
		return fmt.Errorf("%w: unknown batch status %q", ErrValidation, newStatusStr)
	}
	batch, err := r.loadBatch(ctx, batchID)
	if err != nil {
		return err
	}
	caller, err := callerID(ctx)
	if err != nil {
		return err
	}
	authorized, err := r.IsAuthorizedInspector(ctx, caller)
	if err != nil {
		return err
	}
	if !authorized {
		return fmt.Errorf("%w: caller is not an authorized inspector", ErrUnauthorized)
	}
	return r.applyStatusTransition(ctx, batch, newStatus)
}

// applyStatusTransition is the single mutation path for batch status,
// shared by UpdateBatchStatus and the inspection manager's
// synchronization. The roster/ownership check belongs to the caller.
func (r *BatchRegistry) applyStatusTransition(ctx contractapi.TransactionContextInterface, batch *Batch, next BatchStatus) error {
	if !isValidStatusTransition(batch.Status, next) {
		return fmt.Errorf("%w: batch %d cannot move from %s to %s", ErrInvalidState, batch.ID, batch.Status, next)
	}
	now, err := txTime(ctx)
	if err != nil {
		return err
	}
	old := batch.Status
	batch.Status = next
	batch.UpdatedAt = now
	if err := putJSON(ctx, batchKey(batch.ID), batch); err != nil {
		return err
	}
	return emitEvent(ctx, EventBatchStatusUpdated, BatchStatusUpdatedEvent{BatchID: batch.ID, OldStatus: old, NewStatus: next})
}

// isValidStatusTransition is the transition table: statuses only move
// forward, and APPROVED/REJECTED are terminal.
func isValidStatusTransition(current, next BatchStatus) bool {
	switch current {
	case BatchStatusPending:
		return next == BatchStatusInspected
	case BatchStatusInspected:
		return next == BatchStatusApproved || next == BatchStatusRejected
	}
	return false
}

// IsValidStatusTransition exposes the transition table for external
// validation. Unknown status spellings are simply not in the table.
func (r *BatchRegistry) IsValidStatusTransition(ctx contractapi.TransactionContextInterface, current, next string) bool {
	cur, ok := parseBatchStatus(current)
	if !ok {
		return false
	}
	nxt, ok := parseBatchStatus(next)
	if !ok {
		return false
	}
	return isValidStatusTransition(cur, nxt)
}

// GetBatch retrieves a batch by id.
func (r *BatchRegistry) GetBatch(ctx contractapi.TransactionContextInterface, batchIDStr string) (*Batch, error) {
	batchID, err := parseID(batchIDStr)
	if err != nil {
		return nil, err
	}
	return r.loadBatch(ctx, batchID)
}

func (r *BatchRegistry) loadBatch(ctx contractapi.TransactionContextInterface, batchID uint64) (*Batch, error) {
	raw, err := ctx.GetStub().GetState(batchKey(batchID))
	if err != nil {
		return nil, fmt.Errorf("failed to read batch %d: %v", batchID, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: batch %d does not exist", ErrNotFound, batchID)
	}
	var batch Batch
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, fmt.Errorf("failed to unmarshal batch %d: %v", batchID, err)
	}
	return &batch, nil
}

// GetUserBatches lists the ids of batches created by the given owner.
func (r *BatchRegistry) GetUserBatches(ctx contractapi.TransactionContextInterface, owner string) ([]uint64, error) {
	return readIDIndex(ctx, batchOwnerKeyPrefix+owner)
}

// GetTotalBatches returns how many batches have ever been created.
func (r *BatchRegistry) GetTotalBatches(ctx contractapi.TransactionContextInterface) (uint64, error) {
	return currentSequence(ctx, "BATCH")
}

// AuthorizeInspector adds an identity to the roster. Owner-only;
// authorizing an already rostered identity is rejected.
func (r *BatchRegistry) AuthorizeInspector(ctx contractapi.TransactionContextInterface, identity string) error {
	if identity == "" {
		return fmt.Errorf("%w: inspector identity must be non-empty", ErrValidation)
	}
	caller, err := r.requireOwner(ctx)
	if err != nil {
		return err
	}
	authorized, err := r.IsAuthorizedInspector(ctx, identity)
	if err != nil {
		return err
	}
	if authorized {
		return fmt.Errorf("%w: inspector is already authorized", ErrValidation)
	}
	now, err := txTime(ctx)
	if err != nil {
		return err
	}
	rec := InspectorRecord{Identity: identity, AuthorizedBy: caller, AuthorizedAt: now}
	if err := putJSON(ctx, inspectorKey(identity), rec); err != nil {
		return err
	}
	return emitEvent(ctx, EventInspectorAuthorized, InspectorAuthorizedEvent{Inspector: identity})
}

// RevokeInspector removes an identity from the roster. Owner-only;
// revoking an identity that is not rostered is rejected.
func (r *BatchRegistry) RevokeInspector(ctx contractapi.TransactionContextInterface, identity string) error {
	if identity == "" {
		return fmt.Errorf("%w: inspector identity must be non-empty", ErrValidation)
	}
	if _, err := r.requireOwner(ctx); err != nil {
		return err
	}
	authorized, err := r.IsAuthorizedInspector(ctx, identity)
	if err != nil {
		return err
	}
	if !authorized {
		return fmt.Errorf("%w: inspector is not authorized", ErrValidation)
	}
	if err := ctx.GetStub().DelState(inspectorKey(identity)); err != nil {
		return fmt.Errorf("failed to revoke inspector: %v", err)
	}
	return emitEvent(ctx, EventInspectorRevoked, InspectorRevokedEvent{Inspector: identity})
}

// IsAuthorizedInspector reports roster membership.
func (r *BatchRegistry) IsAuthorizedInspector(ctx contractapi.TransactionContextInterface, identity string) (bool, error) {
	raw, err := ctx.GetStub().GetState(inspectorKey(identity))
	if err != nil {
		return false, fmt.Errorf("failed to read inspector roster: %v", err)
	}
	return raw != nil, nil
}

func (r *BatchRegistry) requireOwner(ctx contractapi.TransactionContextInterface) (string, error) {
	owner, err := ctx.GetStub().GetState(registryOwnerKey)
	if err != nil {
		return "", fmt.Errorf("failed to read registry owner: %v", err)
	}
	if owner == nil {
		return "", fmt.Errorf("%w: registry is not initialized", ErrInvalidState)
	}
	caller, err := callerID(ctx)
	if err != nil {
		return "", err
	}
	if caller != string(owner) {
		return "", fmt.Errorf("%w: only the registry owner may manage the roster", ErrUnauthorized)
	}
	return caller, nil
}

// GetEventLog returns up to count audit records starting at sequence
// start (1-based), in emission order.
func (r *BatchRegistry) GetEventLog(ctx contractapi.TransactionContextInterface, startStr, countStr string) ([]EventRecord, error) {
	start, err := strconv.ParseUint(startStr, 10, 64)
	if err != nil || start == 0 {
		return nil, fmt.Errorf("%w: start must be a positive sequence number, got %q", ErrValidation, startStr)
	}
	count, err := strconv.ParseUint(countStr, 10, 64)
	if err != nil || count == 0 {
		return nil, fmt.Errorf("%w: count must be a positive integer, got %q", ErrValidation, countStr)
	}

	iter, err := ctx.GetStub().GetStateByRange(eventKey(start), eventKeyPrefix+"~")
	if err != nil {
		return nil, fmt.Errorf("failed to scan event log: %v", err)
	}
	defer iter.Close()

	records := []EventRecord{}
	for iter.HasNext() && uint64(len(records)) < count {
		kv, err := iter.Next()
		if err != nil {
			return nil, fmt.Errorf("failed during event log iteration: %v", err)
		}
		var rec EventRecord
		if err := json.Unmarshal(kv.Value, &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event record: %v", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// GetTotalEvents returns the sequence number of the newest audit record.
func (r *BatchRegistry) GetTotalEvents(ctx contractapi.TransactionContextInterface) (uint64, error) {
	return currentSequence(ctx, "EVENT")
}
