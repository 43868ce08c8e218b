package main

import (
	"crypto/x509"
	"fmt"
	"testing"
	"time"

	"github.com/hyperledger/fabric-chaincode-go/pkg/cid"
	"github.com/hyperledger/fabric-chaincode-go/shimtest"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	pb "github.com/hyperledger/fabric-protos-go/peer"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// mockIdentity is a minimal client identity for driving the contracts
// as different callers.
type mockIdentity struct {
	id string
}

var _ cid.ClientIdentity = (*mockIdentity)(nil)

func (m *mockIdentity) GetID() (string, error)    { return m.id, nil }
func (m *mockIdentity) GetMSPID() (string, error) { return "Org1MSP", nil }

func (m *mockIdentity) GetX509Certificate() (*x509.Certificate, error) { return nil, nil }
func (m *mockIdentity) GetAttributeValue(string) (string, bool, error) { return "", false, nil }
func (m *mockIdentity) AssertAttributeValue(name, value string) error {
	return fmt.Errorf("attribute %s not set", name)
}

// fixture wires both contracts to one MockStub, mirroring how main
// registers them in a single chaincode.
type fixture struct {
	stub     *shimtest.MockStub
	ctx      *contractapi.TransactionContext
	registry *BatchRegistry
	manager  *InspectionManager
	txSeq    int
	pinned   *timestamppb.Timestamp
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	stub := shimtest.NewMockStub("foodtrace", nil)
	registry := &BatchRegistry{}
	registry.Name = "BatchRegistry"
	manager := NewInspectionManager(registry)
	manager.Name = "InspectionManager"
	ctx := &contractapi.TransactionContext{}
	ctx.SetStub(stub)
	f := &fixture{stub: stub, ctx: ctx, registry: registry, manager: manager}
	f.at(1704067200)
	return f
}

// at pins the transaction timestamp for subsequent calls.
func (f *fixture) at(unix int64) {
	f.pinned = timestamppb.New(time.Unix(unix, 0))
	f.stub.TxTimestamp = f.pinned
}

// as sets the caller identity for subsequent calls.
func (f *fixture) as(id string) {
	f.ctx.SetClientIdentity(&mockIdentity{id: id})
}

func (f *fixture) begin() {
	f.txSeq++
	f.stub.MockTransactionStart(fmt.Sprintf("tx%03d", f.txSeq))
	// MockTransactionStart resets TxTimestamp to the wall clock; restore
	// the pinned value so at() holds across transactions.
	f.stub.TxTimestamp = f.pinned
}

func (f *fixture) end() {
	f.stub.MockTransactionEnd(fmt.Sprintf("tx%03d", f.txSeq))
}

func (f *fixture) initRegistry(caller string) error {
	f.as(caller)
	f.begin()
	defer f.end()
	return f.registry.Initialize(f.ctx)
}

func (f *fixture) initManager(caller string) error {
	f.as(caller)
	f.begin()
	defer f.end()
	return f.manager.Initialize(f.ctx)
}

func (f *fixture) createBatch(caller, number, product, origin, quantity, unit, harvest, expiry string) (uint64, error) {
	f.as(caller)
	f.begin()
	defer f.end()
	return f.registry.CreateBatch(f.ctx, number, product, origin, quantity, unit, harvest, expiry)
}

// createDefaultBatch registers a well-formed batch for tests that only
// need one to exist.
func (f *fixture) createDefaultBatch(t *testing.T, caller string) uint64 {
	t.Helper()
	id, err := f.createBatch(caller, "B-2024-001", "Tomatoes", "Valencia", "100", "kg", "1704067200", "1719676800")
	if err != nil {
		t.Fatalf("createDefaultBatch: %v", err)
	}
	return id
}

func (f *fixture) updateStatus(caller, batchID, status string) error {
	f.as(caller)
	f.begin()
	defer f.end()
	return f.registry.UpdateBatchStatus(f.ctx, batchID, status)
}

func (f *fixture) authorize(caller, inspector string) error {
	f.as(caller)
	f.begin()
	defer f.end()
	return f.registry.AuthorizeInspector(f.ctx, inspector)
}

func (f *fixture) revoke(caller, inspector string) error {
	f.as(caller)
	f.begin()
	defer f.end()
	return f.registry.RevokeInspector(f.ctx, inspector)
}

func (f *fixture) createInspection(caller, batchID, fileURL, notes string) (uint64, error) {
	f.as(caller)
	f.begin()
	defer f.end()
	return f.manager.CreateInspection(f.ctx, batchID, fileURL, notes)
}

func (f *fixture) completeInspection(caller, inspectionID, result, fileURL, notes string) error {
	f.as(caller)
	f.begin()
	defer f.end()
	return f.manager.CompleteInspection(f.ctx, inspectionID, result, fileURL, notes)
}

func (f *fixture) updateResult(caller, inspectionID, result, notes string) error {
	f.as(caller)
	f.begin()
	defer f.end()
	return f.manager.UpdateInspectionResult(f.ctx, inspectionID, result, notes)
}

// drainEvents empties the chaincode event channel and returns the
// notifications raised since the last drain.
func (f *fixture) drainEvents() []*pb.ChaincodeEvent {
	var events []*pb.ChaincodeEvent
	for {
		select {
		case ev := <-f.stub.ChaincodeEventsChannel:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func eventNames(events []*pb.ChaincodeEvent) []string {
	names := make([]string, 0, len(events))
	for _, ev := range events {
		names = append(names, ev.EventName)
	}
	return names
}
