package mapping

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/universalautobrokers/dealerdocs/internal/pdfform"
)

func testEngine() *Engine {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewEngine(log)
}

func TestEngine_AutoMap_PurchaseAgreement(t *testing.T) {
	descriptors := []pdfform.FieldDescriptor{
		{Name: "Buyer_Name", Kind: pdfform.FieldKindText, Page: 1},
		{Name: "VIN", Kind: pdfform.FieldKindText, Page: 1},
		{Name: "Sale_Price", Kind: pdfform.FieldKindText, Page: 1},
		{Name: "Signature_Buyer", Kind: pdfform.FieldKindSignature, Page: 1},
	}

	result := testEngine().AutoMap(descriptors)
	require.Len(t, result.Mappings, 4)
	assert.Empty(t, result.Unmapped)

	byField := make(map[string]FieldMapping)
	for _, m := range result.Mappings {
		byField[m.SourceField] = m
	}

	assert.Equal(t, "client.firstName+lastName", byField["Buyer_Name"].DataPath)
	assert.Equal(t, TransformUppercase, byField["Buyer_Name"].Transform)

	assert.Equal(t, "vehicle.vin", byField["VIN"].DataPath)
	assert.Equal(t, TransformUppercase, byField["VIN"].Transform)

	assert.Equal(t, "deal.totalAmount", byField["Sale_Price"].DataPath)
	assert.Equal(t, TransformCurrency, byField["Sale_Price"].Transform)

	// Signature fields map to the placeholder and are never auto-filled,
	// even though the name also matches the buyer rule.
	assert.Equal(t, SignaturePlaceholder, byField["Signature_Buyer"].DataPath)
	assert.Equal(t, TransformNone, byField["Signature_Buyer"].Transform)

	for _, m := range result.Mappings {
		assert.True(t, m.AutoMapped)
	}
}

func TestEngine_AutoMap_FirstMatchWins(t *testing.T) {
	// "Buyer_Vehicle_Price" matches the buyer rule first; the vehicle and
	// price rules never see it.
	result := testEngine().AutoMap([]pdfform.FieldDescriptor{
		{Name: "Buyer_Vehicle_Price", Kind: pdfform.FieldKindText},
	})
	require.Len(t, result.Mappings, 1)
	assert.Equal(t, "client.vehiclePrice", result.Mappings[0].DataPath)
}

func TestEngine_AutoMap_RuleCoverage(t *testing.T) {
	tests := []struct {
		field     string
		kind      pdfform.FieldKind
		dataPath  string
		transform Transform
	}{
		{"Purchaser_Email", pdfform.FieldKindText, "client.email", TransformLowercase},
		{"Vehicle_Make", pdfform.FieldKindText, "vehicle.make", TransformNone},
		{"vin", pdfform.FieldKindText, "vehicle.vin", TransformUppercase},
		{"Stock_Auto_Number", pdfform.FieldKindText, "vehicle.stockNumber", TransformUppercase},
		{"Down_Payment_Amount", pdfform.FieldKindText, "deal.downPayment", TransformCurrency},
		{"Tax_Amount", pdfform.FieldKindText, "deal.taxAmount", TransformCurrency},
		{"Sale_Date", pdfform.FieldKindDate, "deal.saleDate", TransformDate},
		{"Delivery_Date", pdfform.FieldKindDate, "deal.deliveryDate", TransformDate},
		{"Dealer_License_No", pdfform.FieldKindText, "dealership.licenseNumber", TransformUppercase},
		{"Seller_Phone", pdfform.FieldKindText, "dealership.phone", TransformNone},
	}

	engine := testEngine()
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			result := engine.AutoMap([]pdfform.FieldDescriptor{{Name: tt.field, Kind: tt.kind}})
			require.Len(t, result.Mappings, 1)
			assert.Equal(t, tt.dataPath, result.Mappings[0].DataPath)
			assert.Equal(t, tt.transform, result.Mappings[0].Transform)
		})
	}
}

func TestEngine_AutoMap_UnmatchedFieldsSurfaced(t *testing.T) {
	result := testEngine().AutoMap([]pdfform.FieldDescriptor{
		{Name: "Notary_County", Kind: pdfform.FieldKindText},
		{Name: "VIN", Kind: pdfform.FieldKindText},
	})

	require.Len(t, result.Mappings, 1)
	assert.Equal(t, []string{"Notary_County"}, result.Unmapped)
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		field    string
		dataPath string
		want     float64
	}{
		{"vehicle.vin", "vehicle.vin", 1.0},
		{"vin", "vehicle.vin", 0.95},
		{"VIN", "vehicle.vin", 0.95},
		{"Vehicle_VIN_Number", "vehicle.vin", 0.95},
		{"color", "vehicle.color", 0.95},
		{"Buyer_Name", "client.firstName+lastName", 0.7},
		{"Sale_Date", "deal.saleDate", 0.7},
		{"Misc_Field_7", "client.miscField7", 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			assert.InDelta(t, tt.want, Confidence(tt.field, tt.dataPath), 1e-9)
		})
	}
}

func TestValidate_BatchesEveryMissingRequiredField(t *testing.T) {
	descriptors := []pdfform.FieldDescriptor{
		{Name: "VIN", Required: true},
		{Name: "Buyer_Name", Required: true},
		{Name: "Notes", Required: false},
	}

	err := Validate(descriptors, nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ElementsMatch(t, []string{"VIN", "Buyer_Name"}, verr.Fields)

	err = Validate(descriptors, []FieldMapping{
		{SourceField: "VIN", DataPath: "vehicle.vin"},
		{SourceField: "Buyer_Name", DataPath: "client.firstName+lastName"},
	})
	assert.NoError(t, err)
}
