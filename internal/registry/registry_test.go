package registry

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/universalautobrokers/dealerdocs/internal/db"
	"github.com/universalautobrokers/dealerdocs/internal/mapping"
	"github.com/universalautobrokers/dealerdocs/internal/testpdf"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	gdb, err := db.OpenMemory()
	require.NoError(t, err)

	reg, err := New(gdb, nil, log)
	require.NoError(t, err)
	return reg
}

func purchaseForm(extra ...testpdf.Field) []byte {
	fields := []testpdf.Field{
		testpdf.RequiredTextField("VIN"),
		testpdf.TextField("Buyer_Name"),
		{Name: "Signature_Buyer", FT: "Sig"},
	}
	return testpdf.Build(append(fields, extra...))
}

func TestRegistry_PublishFirstVersion(t *testing.T) {
	reg := testRegistry(t)

	result, err := reg.Publish(context.Background(), purchaseForm(), "purchase_agreement", "CA")
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.Equal(t, 1, result.Template.Version)
	assert.NotEmpty(t, result.Template.Checksum)
	assert.Equal(t, 1, result.Template.PageCount)

	fields, err := result.Template.Fields()
	require.NoError(t, err)
	assert.Len(t, fields, 3)

	mappings, err := result.Template.Mappings()
	require.NoError(t, err)
	byField := make(map[string]mapping.FieldMapping)
	for _, m := range mappings {
		byField[m.SourceField] = m
	}
	assert.Equal(t, "vehicle.vin", byField["VIN"].DataPath)
	assert.True(t, byField["VIN"].AutoMapped)
	assert.Equal(t, mapping.SignaturePlaceholder, byField["Signature_Buyer"].DataPath)
}

func TestRegistry_PublishUnchangedChecksumIsNoOp(t *testing.T) {
	reg := testRegistry(t)
	blank := purchaseForm()

	first, err := reg.Publish(context.Background(), blank, "purchase_agreement", "CA")
	require.NoError(t, err)
	second, err := reg.Publish(context.Background(), blank, "purchase_agreement", "CA")
	require.NoError(t, err)

	assert.False(t, second.Created)
	assert.Equal(t, first.Template.ID, second.Template.ID)

	versions, err := reg.List("purchase_agreement", "CA")
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestRegistry_PublishChangedBytesCarriesForwardByName(t *testing.T) {
	reg := testRegistry(t)

	first, err := reg.Publish(context.Background(), purchaseForm(), "purchase_agreement", "CA")
	require.NoError(t, err)

	// Approve a manual mapping on v1 so carry-forward is observable.
	_, err = reg.SetMapping(first.Template.ID, mapping.FieldMapping{
		SourceField: "VIN",
		DataPath:    "vehicle.vin",
		Transform:   mapping.TransformUppercase,
		Required:    true,
		Confidence:  1.0,
	})
	require.NoError(t, err)

	// New revision of the form: VIN unchanged, one brand-new field.
	revised := purchaseForm(testpdf.TextField("Vehicle_Color"))
	second, err := reg.Publish(context.Background(), revised, "purchase_agreement", "CA")
	require.NoError(t, err)

	assert.True(t, second.Created)
	assert.Equal(t, 2, second.Template.Version)
	assert.NotEqual(t, first.Template.Checksum, second.Template.Checksum)

	mappings, err := second.Template.Mappings()
	require.NoError(t, err)
	byField := make(map[string]mapping.FieldMapping)
	for _, m := range mappings {
		byField[m.SourceField] = m
	}

	// Carried forward verbatim.
	vin := byField["VIN"]
	assert.Equal(t, "vehicle.vin", vin.DataPath)
	assert.InDelta(t, 1.0, vin.Confidence, 1e-9)
	assert.True(t, vin.Required)

	// New field is suggested but pending re-approval.
	newField := byField["Vehicle_Color"]
	assert.Equal(t, "vehicle.color", newField.DataPath)
	assert.False(t, newField.AutoMapped)
	assert.Zero(t, newField.Confidence)

	// v1 is still intact.
	v1, err := reg.GetVersion("purchase_agreement", "CA", 1)
	require.NoError(t, err)
	assert.Equal(t, first.Template.ID, v1.ID)
}

func TestRegistry_RepublishKeepsManualMappingForRuleUnmatchedField(t *testing.T) {
	reg := testRegistry(t)

	// Notary_County matches no auto-map rule; it starts out unmapped.
	first, err := reg.Publish(context.Background(),
		purchaseForm(testpdf.RequiredTextField("Notary_County")), "purchase_agreement", "CA")
	require.NoError(t, err)
	assert.Contains(t, first.Unmapped, "Notary_County")

	_, err = reg.SetMapping(first.Template.ID, mapping.FieldMapping{
		SourceField: "Notary_County",
		DataPath:    "deal.notaryCounty",
		Required:    true,
		Confidence:  1.0,
	})
	require.NoError(t, err)

	// Republish changed bytes with the field name unchanged.
	revised := purchaseForm(
		testpdf.RequiredTextField("Notary_County"),
		testpdf.TextField("Vehicle_Color"),
	)
	second, err := reg.Publish(context.Background(), revised, "purchase_agreement", "CA")
	require.NoError(t, err)
	require.Equal(t, 2, second.Template.Version)

	mappings, err := second.Template.Mappings()
	require.NoError(t, err)
	byField := make(map[string]mapping.FieldMapping)
	for _, m := range mappings {
		byField[m.SourceField] = m
	}

	// The manual assignment carried forward verbatim even though no rule
	// would ever suggest it.
	notary, ok := byField["Notary_County"]
	require.True(t, ok)
	assert.Equal(t, "deal.notaryCounty", notary.DataPath)
	assert.True(t, notary.Required)
	assert.InDelta(t, 1.0, notary.Confidence, 1e-9)
	assert.False(t, notary.AutoMapped)
}

func TestRegistry_LatestAndNotFound(t *testing.T) {
	reg := testRegistry(t)

	_, err := reg.Latest("purchase_agreement", "CA")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = reg.Publish(context.Background(), purchaseForm(), "purchase_agreement", "CA")
	require.NoError(t, err)

	latest, err := reg.Latest("purchase_agreement", "CA")
	require.NoError(t, err)
	assert.Equal(t, 1, latest.Version)

	_, err = reg.GetVersion("purchase_agreement", "CA", 7)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_VerifyChecksum(t *testing.T) {
	reg := testRegistry(t)
	blank := purchaseForm()

	result, err := reg.Publish(context.Background(), blank, "purchase_agreement", "CA")
	require.NoError(t, err)

	assert.NoError(t, reg.VerifyChecksum(result.Template, blank))

	var mismatch *ChecksumMismatchError
	err = reg.VerifyChecksum(result.Template, []byte("different bytes"))
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, result.Template.ID, mismatch.TemplateID)
}
