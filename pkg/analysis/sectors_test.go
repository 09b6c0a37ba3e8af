package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"roboadvisor/pkg/models"
)

func (f *fixture) addSectorHoldings(userID uint) {
	f.store.holdings[userID] = []models.PortfolioHolding{
		{ID: 1, UserID: userID, Name: "Apple", ISIN: "US0378331005", Ticker: "AAPL"},
		{ID: 2, UserID: userID, Name: "SAP", Ticker: "SAP", Sector: "Software"},
		{ID: 3, UserID: userID, Name: "Mystery Fund"},
		{ID: 4, UserID: userID, Name: "BASF", ISIN: "DE000BASF111", Sector: "Chemie"},
	}
}

func TestCheckSectorsUsesModelThenHoldingSector(t *testing.T) {
	f := newFixture(t)
	f.addSectorHoldings(1)
	prompt := mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "- ID 1: Name: Apple | ISIN: US0378331005 | Ticker: AAPL\n") &&
			strings.Contains(p, "- ID 3: Name: Mystery Fund\n")
	})
	f.provider.On("Complete", SectorSystemPrompt, prompt).
		Return(`{"1": "Technologie", "2": "Unbekannt", "3": "", "4": 7, "apple": "Technologie"}`, nil).Once()

	result, err := f.service.CheckSectors(context.Background(), 1)
	require.NoError(t, err)

	require.Len(t, result.Assignments, 4)
	sectors := make(map[uint]string)
	for _, a := range result.Assignments {
		sectors[a.PositionID] = a.Sector
		assert.Nil(t, a.Error)
	}
	assert.Equal(t, map[uint]string{1: "Technologie", 2: "Software", 3: UnknownSector, 4: "Chemie"}, sectors)
	assert.Equal(t, "US0378331005", result.Assignments[0].ISIN)
	assert.Equal(t, []string{"Chemie", "Software", "Technologie"}, result.UniqueSectors)
	assert.Equal(t, 1, result.MissingCount)
	assert.False(t, result.AllSectorsAssigned)
	assert.Equal(t, []float32{SectorTemperature}, f.provider.temperatures)
	assert.Empty(t, f.store.records())
	assert.Zero(t, f.cache.Len())
	f.provider.AssertExpectations(t)
}

func TestCheckSectorsFallsBackOnProviderError(t *testing.T) {
	f := newFixture(t)
	f.addSectorHoldings(1)
	f.provider.On("Complete", SectorSystemPrompt, mock.Anything).Return("", errors.New("timeout")).Once()

	result, err := f.service.CheckSectors(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Chemie", "Software"}, result.UniqueSectors)
	assert.Equal(t, 2, result.MissingCount)
	assert.Equal(t, UnknownSector, result.Assignments[0].Sector)
}

func TestCheckSectorsFallsBackOnBadJSON(t *testing.T) {
	f := newFixture(t)
	f.store.holdings[1] = []models.PortfolioHolding{{ID: 9, UserID: 1, Name: "SAP", Sector: "Software"}}
	f.provider.On("Complete", SectorSystemPrompt, mock.Anything).Return("not json", nil).Once()

	result, err := f.service.CheckSectors(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, result.AllSectorsAssigned)
	assert.Equal(t, []string{"Software"}, result.UniqueSectors)
}

func TestCheckSectorsWithoutProvider(t *testing.T) {
	f := newFixture(t)
	f.addSectorHoldings(1)
	f.service.client = NewClient(nil)

	result, err := f.service.CheckSectors(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, result.MissingCount)
	f.provider.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestCheckSectorsEmptyPortfolio(t *testing.T) {
	f := newFixture(t)

	result, err := f.service.CheckSectors(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, result.AllSectorsAssigned)
	assert.Empty(t, result.Assignments)
	assert.Equal(t, []string{}, result.UniqueSectors)
	assert.Zero(t, result.MissingCount)
	f.provider.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}
