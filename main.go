/*
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"fmt"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

func main() {
	registry := &BatchRegistry{}
	registry.Name = "BatchRegistry"

	manager := NewInspectionManager(registry)
	manager.Name = "InspectionManager"

	chaincode, err := contractapi.NewChaincode(registry, manager)
	if err != nil {
		fmt.Printf("Error creating foodtrace chaincode: %v\n", err)
		return
	}

	if err := chaincode.Start(); err != nil {
		fmt.Printf("Error starting foodtrace chaincode: %v\n", err)
	}
}
