package handler

import (
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"custos/internal/rules"
	id "custos/pkg/domain"
	"custos/pkg/testutil"
)

// =============================================================================
// Composite Rule Handler Test Suite
// =============================================================================
// Justification for handler tests: the CRUD surface carries the creation-time
// validation contract (unknown fields rejected with 400) and the enabled
// toggle that compliance operators rely on; both must be pinned at the wire.

type RuleHandlerSuite struct {
	suite.Suite
	router  chi.Router
	service *rules.Service
	assetID id.AssetID
}

func TestRuleHandlerSuite(t *testing.T) {
	suite.Run(t, new(RuleHandlerSuite))
}

func (s *RuleHandlerSuite) SetupTest() {
	var err error
	s.service, err = rules.NewService(rules.NewInMemoryStore(), rules.NewEngine(false), nil, nil)
	s.Require().NoError(err)

	s.router = chi.NewRouter()
	New(s.service, slog.Default()).Register(s.router)
	s.assetID = id.NewAssetID()
}

func (s *RuleHandlerSuite) createBody(name string) map[string]any {
	return map[string]any{
		"asset_id":    s.assetID.String(),
		"name":        name,
		"description": "US investors only",
		"operator":    "AND",
		"conditions": []map[string]any{
			{"field": "to.jurisdiction", "operator": "eq", "value": "US"},
		},
	}
}

func (s *RuleHandlerSuite) TestCreate() {
	s.Run("creates an enabled rule", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/composite-rules", s.createBody("us-only"))
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		rule := testutil.UnmarshalResponse[rules.CompositeRule](s.T(), rr)
		s.Equal("us-only", rule.Name)
		s.True(rule.Enabled)
		s.False(rule.ID.String() == "")
	})

	s.Run("unknown condition field is rejected", func() {
		body := s.createBody("bad-field")
		body["conditions"] = []map[string]any{
			{"field": "to.net_worth", "operator": "gt", "value": 100},
		}
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/composite-rules", body)
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("invalid asset id is rejected", func() {
		body := s.createBody("bad-asset")
		body["asset_id"] = "not-a-uuid"
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/composite-rules", body)
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
	})
}

func (s *RuleHandlerSuite) TestListAndGet() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/composite-rules", s.createBody("us-only"))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	created := testutil.UnmarshalResponse[rules.CompositeRule](s.T(), rr)

	s.Run("lists rules for the asset", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/composite-rules?asset_id="+s.assetID.String())
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		resp := testutil.UnmarshalResponse[struct {
			Rules []rules.CompositeRule `json:"rules"`
		}](s.T(), rr)
		s.Len(resp.Rules, 1)
		s.Equal(created.ID, resp.Rules[0].ID)
	})

	s.Run("gets a rule by id", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/composite-rules/"+created.ID.String())
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		rule := testutil.UnmarshalResponse[rules.CompositeRule](s.T(), rr)
		s.Equal(created.ID, rule.ID)
	})

	s.Run("unknown rule id returns 404", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/composite-rules/"+id.NewRuleID().String())
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})
}

func (s *RuleHandlerSuite) TestUpdateAndDelete() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/composite-rules", s.createBody("us-only"))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	created := testutil.UnmarshalResponse[rules.CompositeRule](s.T(), rr)

	s.Run("patch disables the rule", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPatch, "/composite-rules/"+created.ID.String(),
			map[string]any{"enabled": false})
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		rule := testutil.UnmarshalResponse[rules.CompositeRule](s.T(), rr)
		s.False(rule.Enabled)
	})

	s.Run("patch without enabled is rejected", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPatch, "/composite-rules/"+created.ID.String(),
			map[string]any{})
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("delete removes the rule", func() {
		req := testutil.NewRequest(s.T(), http.MethodDelete, "/composite-rules/"+created.ID.String())
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusNoContent)

		req = testutil.NewRequest(s.T(), http.MethodGet, "/composite-rules/"+created.ID.String())
		rr = testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})
}
