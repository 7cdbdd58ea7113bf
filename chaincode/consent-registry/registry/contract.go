package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// SmartContract records consent status, content hashes, and audit
// entries. Everything written here is append-only evidence: consent
// facts are superseded by later writes under the same key, never
// edited, and the key's history keeps every prior version.
type SmartContract struct {
	contractapi.Contract
}

// ConsentFact is the on-chain view of one consent relationship
type ConsentFact struct {
	SubjectID  string    `json:"subject_id"`
	AccessorID string    `json:"accessor_id"`
	Status     string    `json:"status"`
	TxID       string    `json:"tx_id"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// RecordHashFact anchors a content record's SHA-256 digest
type RecordHashFact struct {
	RecordID     string    `json:"record_id"`
	OwnerID      string    `json:"owner_id"`
	ContentHash  string    `json:"content_hash"`
	TxID         string    `json:"tx_id"`
	RegisteredAt time.Time `json:"registered_at"`
}

// AuditEntry is one immutable audit trail entry
type AuditEntry struct {
	ID         string                 `json:"id"`
	ActorID    string                 `json:"actor_id"`
	TargetID   string                 `json:"target_id"`
	Action     string                 `json:"action"`
	ResourceID string                 `json:"resource_id,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Signature  string                 `json:"signature"`
	TxID       string                 `json:"tx_id"`
	DocType    string                 `json:"doc_type"`
}

const auditDocType = "audit_entry"

// Ping answers health probes
func (s *SmartContract) Ping(ctx contractapi.TransactionContextInterface) (string, error) {
	return `{"status":"ok"}`, nil
}

// RecordConsentGrant writes a granted consent fact for the pair
func (s *SmartContract) RecordConsentGrant(ctx contractapi.TransactionContextInterface, factJSON string) error {
	return s.putConsentFact(ctx, factJSON, "granted")
}

// RecordConsentRevoke writes a revoked consent fact for the pair
func (s *SmartContract) RecordConsentRevoke(ctx contractapi.TransactionContextInterface, factJSON string) error {
	return s.putConsentFact(ctx, factJSON, "revoked")
}

// GetConsentStatus returns the current consent fact for a
// subject|accessor key.
func (s *SmartContract) GetConsentStatus(ctx contractapi.TransactionContextInterface, pairKey string) (*ConsentFact, error) {
	factJSON, err := ctx.GetStub().GetState(consentKey(pairKey))
	if err != nil {
		return nil, fmt.Errorf("failed to read consent fact: %v", err)
	}
	if factJSON == nil {
		return nil, fmt.Errorf("no consent fact for %s", pairKey)
	}

	var fact ConsentFact
	if err := json.Unmarshal(factJSON, &fact); err != nil {
		return nil, err
	}

	return &fact, nil
}

// RegisterRecordHash anchors a content record's digest. A record's
// hash is written once; re-registering the same record is rejected.
func (s *SmartContract) RegisterRecordHash(ctx contractapi.TransactionContextInterface, factJSON string) error {
	var fact RecordHashFact
	if err := json.Unmarshal([]byte(factJSON), &fact); err != nil {
		return fmt.Errorf("invalid record hash payload: %v", err)
	}
	if fact.RecordID == "" || fact.ContentHash == "" {
		return fmt.Errorf("record id and content hash are required")
	}

	key := recordKey(fact.RecordID)
	existing, err := ctx.GetStub().GetState(key)
	if err != nil {
		return fmt.Errorf("failed to read record fact: %v", err)
	}
	if existing != nil {
		return fmt.Errorf("record %s is already registered", fact.RecordID)
	}

	fact.TxID = ctx.GetStub().GetTxID()
	stored, err := json.Marshal(fact)
	if err != nil {
		return err
	}

	return ctx.GetStub().PutState(key, stored)
}

// GetRecordHash returns the anchored digest for a record id
func (s *SmartContract) GetRecordHash(ctx contractapi.TransactionContextInterface, recordID string) (*RecordHashFact, error) {
	factJSON, err := ctx.GetStub().GetState(recordKey(recordID))
	if err != nil {
		return nil, fmt.Errorf("failed to read record fact: %v", err)
	}
	if factJSON == nil {
		return nil, fmt.Errorf("no record hash for %s", recordID)
	}

	var fact RecordHashFact
	if err := json.Unmarshal(factJSON, &fact); err != nil {
		return nil, err
	}

	return &fact, nil
}

// AppendAuditEntry stores one audit entry with a content signature
func (s *SmartContract) AppendAuditEntry(ctx contractapi.TransactionContextInterface, entryJSON string) error {
	var entry AuditEntry
	if err := json.Unmarshal([]byte(entryJSON), &entry); err != nil {
		return fmt.Errorf("invalid audit entry payload: %v", err)
	}
	if entry.ActorID == "" || entry.Action == "" {
		return fmt.Errorf("actor and action are required")
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	entry.TxID = ctx.GetStub().GetTxID()
	entry.DocType = auditDocType
	if entry.ID == "" {
		entry.ID = generateAuditID(entry.Action+"_"+entry.ActorID, entry.Timestamp)
	}
	entry.Signature = generateEntrySignature(entry)

	stored, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	return ctx.GetStub().PutState(auditKey(entry.ID), stored)
}

// GetAuditTrailByActor returns an actor's audit entries, most recent
// first, capped at limit.
func (s *SmartContract) GetAuditTrailByActor(ctx contractapi.TransactionContextInterface, actorID string, limitArg string) ([]*AuditEntry, error) {
	limit, err := strconv.Atoi(limitArg)
	if err != nil || limit <= 0 {
		limit = 100
	}

	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"doc_type": auditDocType,
			"actor_id": actorID,
		},
		"sort": []map[string]string{
			{"timestamp": "desc"},
		},
		"limit": limit,
	}
	queryJSON, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to build audit query: %v", err)
	}

	resultsIterator, err := ctx.GetStub().GetQueryResult(string(queryJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to execute audit query: %v", err)
	}
	defer resultsIterator.Close()

	var entries []*AuditEntry
	for resultsIterator.HasNext() {
		queryResponse, err := resultsIterator.Next()
		if err != nil {
			return nil, err
		}

		var entry AuditEntry
		if err := json.Unmarshal(queryResponse.Value, &entry); err != nil {
			return nil, err
		}

		entries = append(entries, &entry)
	}

	return entries, nil
}

// VerifyAuditEntry recomputes an entry's signature and compares it
// against the stored one.
func (s *SmartContract) VerifyAuditEntry(ctx contractapi.TransactionContextInterface, entryID string) (bool, error) {
	entryJSON, err := ctx.GetStub().GetState(auditKey(entryID))
	if err != nil {
		return false, fmt.Errorf("failed to read audit entry: %v", err)
	}
	if entryJSON == nil {
		return false, fmt.Errorf("audit entry %s does not exist", entryID)
	}

	var entry AuditEntry
	if err := json.Unmarshal(entryJSON, &entry); err != nil {
		return false, err
	}

	return entry.Signature == generateEntrySignature(entry), nil
}

func (s *SmartContract) putConsentFact(ctx contractapi.TransactionContextInterface, factJSON, wantStatus string) error {
	var fact ConsentFact
	if err := json.Unmarshal([]byte(factJSON), &fact); err != nil {
		return fmt.Errorf("invalid consent payload: %v", err)
	}
	if fact.SubjectID == "" || fact.AccessorID == "" {
		return fmt.Errorf("subject and accessor are required")
	}
	if fact.Status != wantStatus {
		return fmt.Errorf("expected status %s, got %s", wantStatus, fact.Status)
	}

	if fact.UpdatedAt.IsZero() {
		fact.UpdatedAt = time.Now()
	}
	fact.TxID = ctx.GetStub().GetTxID()

	stored, err := json.Marshal(fact)
	if err != nil {
		return err
	}

	return ctx.GetStub().PutState(consentKey(fact.SubjectID+"|"+fact.AccessorID), stored)
}

func consentKey(pairKey string) string {
	return "consent_" + pairKey
}

func recordKey(recordID string) string {
	return "record_" + recordID
}

func auditKey(entryID string) string {
	return "audit_" + entryID
}

// generateAuditID derives a deterministic short id from the action,
// actor, and timestamp.
func generateAuditID(prefix string, timestamp time.Time) string {
	input := fmt.Sprintf("%s_%d_%d", prefix, timestamp.Unix(), timestamp.Nanosecond())
	hash := sha256.Sum256([]byte(input))
	return "ae_" + hex.EncodeToString(hash[:8])
}

// generateEntrySignature hashes the entry's identifying fields. The
// signature field itself is excluded from the input.
func generateEntrySignature(entry AuditEntry) string {
	signatureInput := fmt.Sprintf("%s|%s|%s|%s|%s|%d|%s",
		entry.ID,
		entry.ActorID,
		entry.TargetID,
		entry.Action,
		entry.ResourceID,
		entry.Timestamp.Unix(),
		entry.TxID,
	)

	if entry.Details != nil {
		detailsJSON, err := json.Marshal(entry.Details)
		if err == nil {
			signatureInput += "|" + string(detailsJSON)
		}
	}

	hash := sha256.Sum256([]byte(signatureInput))
	return hex.EncodeToString(hash[:])
}
