package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// SyncTarget names this sink in sync bookkeeping and logs.
const SyncTarget = "salesforce"

// Account represents the Salesforce Account fields the producer sync reads.
type Account struct {
	ID                string  `json:"Id" salesforce:"Id"`
	Name              string  `json:"Name" salesforce:"Name"`
	Phone             string  `json:"Phone" salesforce:"Phone"`
	Industry          string  `json:"Industry" salesforce:"Industry"`
	BillingPostalCode string  `json:"BillingPostalCode" salesforce:"BillingPostalCode"`
	BillingCountry    string  `json:"BillingCountry" salesforce:"BillingCountry"`
	ProducerID        string  `json:"Producer_ID__c" salesforce:"Producer_ID__c"`
	GSTIN             string  `json:"GSTIN__c" salesforce:"GSTIN__c"`
	PAN               string  `json:"PAN__c" salesforce:"PAN__c"`
	RiskScore         float64 `json:"Risk_Score__c" salesforce:"Risk_Score__c"`
}

// accountFields are the SOQL fields selected for Account queries.
var accountFields = []string{
	"Id", "Name", "Phone", "Industry",
	"BillingPostalCode", "BillingCountry",
	"Producer_ID__c", "GSTIN__c", "PAN__c", "Risk_Score__c",
}

// ProducerRecord is the onboarded-producer data pushed to the CRM.
type ProducerRecord struct {
	ProducerID   string
	BusinessName string
	Email        string
	Phone        string
	BusinessType string
	GSTIN        string
	PAN          string
	Address      string
	Pincode      string
	RiskScore    float64
}

// FindAccountByProducerID queries Salesforce for the Account carrying the
// given external producer id. Returns nil if no account is found.
func FindAccountByProducerID(ctx context.Context, c Client, producerID string) (*Account, error) {
	soql := fmt.Sprintf(
		"SELECT %s FROM Account WHERE Producer_ID__c = '%s' LIMIT 1",
		strings.Join(accountFields, ", "),
		escapeSoql(producerID),
	)

	var accounts []Account
	if err := c.Query(ctx, soql, &accounts); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: find account by producer id %s", producerID))
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return &accounts[0], nil
}

// FindAccountByGSTIN queries Salesforce for the Account registered under
// the given GSTIN. Returns nil if no account is found.
func FindAccountByGSTIN(ctx context.Context, c Client, gstin string) (*Account, error) {
	soql := fmt.Sprintf(
		"SELECT %s FROM Account WHERE GSTIN__c = '%s' LIMIT 1",
		strings.Join(accountFields, ", "),
		escapeSoql(gstin),
	)

	var accounts []Account
	if err := c.Query(ctx, soql, &accounts); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: find account by gstin %s", gstin))
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return &accounts[0], nil
}

// UpsertProducer creates or refreshes the Account for an onboarded
// producer. Matching tries the external producer id first, then the GSTIN,
// so a producer who re-onboards under a fresh session lands on the same
// account. Returns the account id and whether a new record was created.
func UpsertProducer(ctx context.Context, c Client, rec ProducerRecord) (string, bool, error) {
	if rec.ProducerID == "" {
		return "", false, eris.New("sf: producer id is required")
	}

	existing, err := FindAccountByProducerID(ctx, c, rec.ProducerID)
	if err != nil {
		return "", false, err
	}
	if existing == nil && rec.GSTIN != "" {
		existing, err = FindAccountByGSTIN(ctx, c, rec.GSTIN)
		if err != nil {
			return "", false, err
		}
	}

	fields := accountFieldsFor(rec)
	if existing != nil {
		if err := c.UpdateOne(ctx, "Account", existing.ID, fields); err != nil {
			return "", false, eris.Wrap(err, fmt.Sprintf("sf: refresh producer %s", rec.ProducerID))
		}
		return existing.ID, false, nil
	}

	id, err := c.InsertOne(ctx, "Account", fields)
	if err != nil {
		return "", false, eris.Wrap(err, fmt.Sprintf("sf: create producer %s", rec.ProducerID))
	}
	return id, true, nil
}

// CreateProducerContact links a Contact carrying the producer's onboarding
// email to the account. Salesforce requires LastName on Contact; the
// business name stands in since onboarding collects no person name.
func CreateProducerContact(ctx context.Context, c Client, accountID string, rec ProducerRecord) (string, error) {
	if accountID == "" {
		return "", eris.New("sf: account id is required for contact")
	}
	if rec.Email == "" {
		return "", eris.New("sf: contact email is required")
	}

	lastName := rec.BusinessName
	if lastName == "" {
		lastName = rec.ProducerID
	}
	fields := map[string]any{
		"AccountId": accountID,
		"LastName":  lastName,
		"Email":     rec.Email,
	}
	setIfPresent(fields, "Phone", rec.Phone)

	id, err := c.InsertOne(ctx, "Contact", fields)
	if err != nil {
		return "", eris.Wrap(err, fmt.Sprintf("sf: create contact for account %s", accountID))
	}
	return id, nil
}

// accountFieldsFor maps collected onboarding data onto Account fields.
// Empty values are omitted so a partial record doesn't blank out CRM data.
func accountFieldsFor(rec ProducerRecord) map[string]any {
	name := rec.BusinessName
	if name == "" {
		name = rec.ProducerID
	}
	fields := map[string]any{
		"Name":           name,
		"Type":           "Producer",
		"Producer_ID__c": rec.ProducerID,
		"BillingCountry": "India",
	}
	setIfPresent(fields, "Phone", rec.Phone)
	setIfPresent(fields, "Industry", rec.BusinessType)
	setIfPresent(fields, "BillingStreet", rec.Address)
	setIfPresent(fields, "BillingPostalCode", rec.Pincode)
	setIfPresent(fields, "GSTIN__c", rec.GSTIN)
	setIfPresent(fields, "PAN__c", rec.PAN)
	if rec.RiskScore > 0 {
		fields["Risk_Score__c"] = rec.RiskScore
	}
	return fields
}

func setIfPresent(fields map[string]any, key, value string) {
	if value != "" {
		fields[key] = value
	}
}

// escapeSoql escapes single quotes in SOQL string literals to prevent injection.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
