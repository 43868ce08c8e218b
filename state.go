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

// World-state key layout. Records are JSON-marshalled under prefixed
// keys; sequences live under their own prefix so range scans over
// records never pick them up.
const (
	batchKeyPrefix      = "BATCH_"
	batchOwnerKeyPrefix = "BATCH_OWNER_"
	inspectionKeyPrefix = "INSPECTION_"
	inspBatchKeyPrefix  = "INSPECTION_BATCH_"
	inspByUserKeyPrefix = "INSPECTION_INSPECTOR_"
	inspectorKeyPrefix  = "INSPECTOR_"
	eventKeyPrefix      = "EVENT_"
	counterKeyPrefix    = "COUNTER_"
	registryOwnerKey    = "REGISTRY_OWNER"
	managerOwnerKey     = "MANAGER_OWNER"
	managerRegistryKey  = "MANAGER_REGISTRY"
)

func batchKey(id uint64) string      { return batchKeyPrefix + strconv.FormatUint(id, 10) }
func inspectionKey(id uint64) string { return inspectionKeyPrefix + strconv.FormatUint(id, 10) }
func inspectorKey(id string) string  { return inspectorKeyPrefix + id }

func inspBatchIndexKey(batchID uint64) string {
	return inspBatchKeyPrefix + strconv.FormatUint(batchID, 10)
}

// eventKey zero-pads the sequence so a range scan returns events in
// emission order.
func eventKey(seq uint64) string { return fmt.Sprintf("%s%012d", eventKeyPrefix, seq) }

// callerID returns the substrate-attested identity of the transaction
// submitter. Authorization never trusts a client-supplied field.
func callerID(ctx contractapi.TransactionContextInterface) (string, error) {
	id, err := ctx.GetClientIdentity().GetID()
	if err != nil {
		return "", fmt.Errorf("failed to resolve caller identity: %v", err)
	}
	return id, nil
}

// txTime returns the transaction timestamp in unix seconds. The tx
// timestamp is consensus-agreed, so every peer records the same value.
func txTime(ctx contractapi.TransactionContextInterface) (int64, error) {
	ts, err := ctx.GetStub().GetTxTimestamp()
	if err != nil {
		return 0, fmt.Errorf("failed to read transaction timestamp: %v", err)
	}
	return ts.GetSeconds(), nil
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid id %q", ErrValidation, s)
	}
	return id, nil
}

// nextSequence increments and returns the named per-store sequence.
// Sequences start at 1 and are never reused.
func nextSequence(ctx contractapi.TransactionContextInterface, name string) (uint64, error) {
	cur, err := currentSequence(ctx, name)
	if err != nil {
		return 0, err
	}
	next := cur + 1
	if err := ctx.GetStub().PutState(counterKeyPrefix+name, []byte(strconv.FormatUint(next, 10))); err != nil {
		return 0, fmt.Errorf("failed to advance %s sequence: %v", name, err)
	}
	return next, nil
}

func currentSequence(ctx contractapi.TransactionContextInterface, name string) (uint64, error) {
	raw, err := ctx.GetStub().GetState(counterKeyPrefix + name)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s sequence: %v", name, err)
	}
	if raw == nil {
		return 0, nil
	}
	cur, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt %s sequence value %q: %v", name, raw, err)
	}
	return cur, nil
}

func putJSON(ctx contractapi.TransactionContextInterface, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %v", key, err)
	}
	return ctx.GetStub().PutState(key, raw)
}

// readIDIndex returns the id list stored under key, or an empty list if
// the index was never written.
func readIDIndex(ctx contractapi.TransactionContextInterface, key string) ([]uint64, error) {
	raw, err := ctx.GetStub().GetState(key)
	if err != nil {
		return nil, fmt.Errorf("failed to read index %s: %v", key, err)
	}
	if raw == nil {
		return []uint64{}, nil
	}
	var ids []uint64
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("failed to unmarshal index %s: %v", key, err)
	}
	return ids, nil
}

func appendIDIndex(ctx contractapi.TransactionContextInterface, key string, id uint64) error {
	ids, err := readIDIndex(ctx, key)
	if err != nil {
		return err
	}
	return putJSON(ctx, key, append(ids, id))
}
