package main

import (
	"log"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"github.com/caremesh/chaincode/consent-registry/registry"
)

func main() {
	consentRegistryChaincode, err := contractapi.NewChaincode(&registry.SmartContract{})
	if err != nil {
		log.Panicf("Error creating ConsentRegistry chaincode: %v", err)
	}

	if err := consentRegistryChaincode.Start(); err != nil {
		log.Panicf("Error starting ConsentRegistry chaincode: %v", err)
	}
}
