package sorting_api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BearBump/SortBox/internal/cache/rediscache"
	"github.com/BearBump/SortBox/internal/metrics"
	"github.com/BearBump/SortBox/internal/models"
	"github.com/BearBump/SortBox/internal/services/bags"
	"github.com/BearBump/SortBox/internal/services/catalog"
	"github.com/BearBump/SortBox/internal/services/sortedbags"
	"github.com/BearBump/SortBox/internal/services/wizard"
	"github.com/BearBump/SortBox/internal/storage/memsorting"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type APISuite struct {
	suite.Suite

	srv   *httptest.Server
	store *memsorting.Store
	reg   *prometheus.Registry
	now   time.Time
}

func (s *APISuite) SetupTest() {
	mr := miniredis.RunT(s.T())
	rc := rediscache.NewClient(mr.Addr())
	s.store = memsorting.New()
	s.now = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }
	s.reg = prometheus.NewRegistry()
	m := metrics.New(s.reg)
	log := zerolog.Nop()

	cat := catalog.New(s.store, rediscache.New(rc), time.Minute, m, log)
	bagSvc := bags.New(s.store, nil, m, log, bags.Options{Now: clock})
	api := New(Deps{
		Catalog:    cat,
		Bags:       bagSvc,
		SortedBags: sortedbags.New(s.store, m, log, clock),
		Wizard: wizard.New(cat, rediscache.NewDraftStore(rc, time.Hour), rediscache.NewLimiter(rc), bagSvc, m, log, wizard.Options{
			GuardWindow: time.Minute,
			Now:         clock,
		}),
		Metrics: m,
		Log:     log,
	})
	s.srv = httptest.NewServer(api.Routes())
	s.T().Cleanup(s.srv.Close)
}

// httpRoutes collects the route labels of sorting_http_requests_total.
func (s *APISuite) httpRoutes() []string {
	families, err := s.reg.Gather()
	s.Require().NoError(err)
	var routes []string
	for _, f := range families {
		if f.GetName() != "sorting_http_requests_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "route" {
					routes = append(routes, l.GetValue())
				}
			}
		}
	}
	return routes
}

func (s *APISuite) TestUnknownPathsShareOneRouteLabel() {
	for _, p := range []string{"/no-such/1", "/no-such/2", "/nothing"} {
		resp := s.do(http.MethodGet, p, nil, nil)
		s.Equal(http.StatusNotFound, resp.StatusCode)
	}
	s.do(http.MethodGet, "/sockets/42", nil, nil)

	routes := s.httpRoutes()
	s.Contains(routes, "unmatched")
	for _, r := range routes {
		s.NotContains(r, "no-such")
		s.NotEqual("/nothing", r)
	}
	s.Len(routes, 2)
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}

// do sends body as JSON and decodes the answer into out when out is not nil.
func (s *APISuite) do(method, path string, body any, out any) *http.Response {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		s.Require().NoError(err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, s.srv.URL+path, rd)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Do(req)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = resp.Body.Close() })
	if out != nil {
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (s *APISuite) createSocket(code string, supportsSource bool) int64 {
	var so models.Socket
	resp := s.do(http.MethodPost, "/sockets", map[string]any{
		"socket_id":       code,
		"socket_name":     code + " station",
		"supports_source": supportsSource,
	}, &so)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	return so.ID
}

func (s *APISuite) createBagType(socket int64, code, source string, params ...string) int64 {
	var bt models.BagType
	resp := s.do(http.MethodPost, "/bag-types", map[string]any{
		"name":       code + " type",
		"code":       code,
		"order":      1,
		"bag_source": source,
		"socket":     socket,
		"parameters": params,
	}, &bt)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	return bt.ID
}

func (s *APISuite) TestSocketCRUD() {
	id := s.createSocket("S1", false)

	var so models.Socket
	resp := s.do(http.MethodGet, fmt.Sprintf("/sockets/%d", id), nil, &so)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("S1", so.SocketID)
	s.Equal(models.DefaultSocketColor, so.Color)
	s.True(so.IsActive)

	resp = s.do(http.MethodPut, fmt.Sprintf("/sockets/%d", id), map[string]any{
		"socket_id":   "S1",
		"socket_name": "Renamed",
		"is_active":   false,
	}, &so)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("Renamed", so.Name)

	var active []models.Socket
	s.do(http.MethodGet, "/sockets?active=true", nil, &active)
	s.Empty(active)

	resp = s.do(http.MethodGet, "/sockets/999", nil, nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *APISuite) TestValidationErrorsNameJSONFields() {
	var body errorBody
	resp := s.do(http.MethodPost, "/sockets", map[string]any{
		"socket_name":  "No code",
		"socket_color": "red",
	}, &body)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Equal("validation", body.Error.Code)
	details, ok := body.Error.Details.(map[string]any)
	s.Require().True(ok)
	s.Equal("is required", details["socket_id"])
	s.Equal("must be #RRGGBB", details["socket_color"])
}

func (s *APISuite) TestUnknownFieldRejected() {
	resp := s.do(http.MethodPost, "/persons", map[string]any{
		"name":      "Ann",
		"person_id": "P1",
		"nickname":  "a",
	}, nil)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *APISuite) TestDuplicateSocketIsConflict() {
	s.createSocket("DUP", false)
	var body errorBody
	resp := s.do(http.MethodPost, "/sockets", map[string]any{"socket_id": "DUP", "socket_name": "Again"}, &body)
	s.Equal(http.StatusConflict, resp.StatusCode)
	s.Equal("conflict", body.Error.Code)
}

func (s *APISuite) TestDeleteSocketNeedsConfirmation() {
	id := s.createSocket("S1", false)
	s.createBagType(id, "T1", "IN")

	var body errorBody
	resp := s.do(http.MethodDelete, fmt.Sprintf("/sockets/%d", id), nil, &body)
	s.Equal(http.StatusConflict, resp.StatusCode)
	s.Equal("confirmation_required", body.Error.Code)
	impact, ok := body.Error.Details.(map[string]any)
	s.Require().True(ok)
	s.EqualValues(1, impact["bag_types"])

	var im models.SocketImpact
	resp = s.do(http.MethodDelete, fmt.Sprintf("/sockets/%d?confirm=true", id), nil, &im)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(1, im.BagTypes)

	resp = s.do(http.MethodGet, fmt.Sprintf("/sockets/%d", id), nil, nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *APISuite) TestDeleteReferencedBagType() {
	socket := s.createSocket("S1", false)
	bt := s.createBagType(socket, "T1", "IN")
	resp := s.do(http.MethodPost, "/bags", map[string]any{"socket": socket, "bag_type": bt}, nil)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	var body errorBody
	resp = s.do(http.MethodDelete, fmt.Sprintf("/bag-types/%d", bt), nil, &body)
	s.Equal(http.StatusConflict, resp.StatusCode)
	s.Equal("referenced", body.Error.Code)
}

func (s *APISuite) TestBagTypeParametersRoundTrip() {
	socket := s.createSocket("S1", false)
	id := s.createBagType(socket, "T1", "IN", "Standard", "Extra")

	var bt models.BagType
	s.do(http.MethodGet, fmt.Sprintf("/bag-types/%d", id), nil, &bt)
	s.True(bt.AllowsExtra())

	resp := s.do(http.MethodPost, "/bag-types", map[string]any{
		"name": "Bad", "code": "B", "order": 1, "bag_source": "IN", "socket": socket,
		"parameters": []string{"Huge"},
	}, nil)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *APISuite) TestGroupedSubtypes() {
	socket := s.createSocket("S1", false)
	bt := s.createBagType(socket, "T1", "IN")

	var cat models.BagTypeCategory
	resp := s.do(http.MethodPost, "/categories", map[string]any{"name": "Textile", "color": "#112233"}, &cat)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	resp = s.do(http.MethodPost, "/subtypes", map[string]any{"bag_type": bt, "name": "Wool", "category": cat.ID}, nil)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	resp = s.do(http.MethodPost, "/subtypes", map[string]any{"bag_type": bt, "name": "Loose"}, nil)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	var groups []catalog.SubtypeGroup
	resp = s.do(http.MethodGet, fmt.Sprintf("/bag-types/%d/subtypes/grouped", bt), nil, &groups)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().Len(groups, 2)
	s.Equal("#112233", groups[0].Color)
	s.Equal(models.NeutralColor, groups[1].Color)
}

func (s *APISuite) TestReorder() {
	a := s.createSocket("A", false)
	b := s.createSocket("B", false)

	resp := s.do(http.MethodPost, "/order", map[string]any{"type": "socket", "order": []int64{b, a}}, nil)
	s.Equal(http.StatusOK, resp.StatusCode)

	var list []models.Socket
	s.do(http.MethodGet, "/sockets", nil, &list)
	s.Require().Len(list, 2)
	s.Equal(b, list[0].ID)

	resp = s.do(http.MethodPost, "/order", map[string]any{"type": "shelf", "order": []int64{a}}, nil)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *APISuite) TestBagLifecycle() {
	sep := s.createSocket("SEP", true)
	bt := s.createBagType(sep, "AGR", "IN")

	var first bagResponse
	resp := s.do(http.MethodPost, "/bags", map[string]any{
		"socket": sep, "bag_type": bt, "bag_source": "IN", "weight_kg": "12.50",
	}, &first)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	s.Equal("BAG_000001", first.BagID)
	s.False(first.Processed)

	s.now = s.now.Add(95 * time.Second)
	resp = s.do(http.MethodPost, "/bags", map[string]any{"socket": sep, "bag_type": bt, "bag_source": "IN"}, nil)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	var got bagResponse
	s.do(http.MethodGet, "/bags/by-bag-id/BAG_000001", nil, &got)
	s.True(got.Processed)
	s.True(got.AutoProcessedByNextBag)
	s.Equal("1m 35s", got.ProcessingDuration)

	var next map[string]string
	s.do(http.MethodGet, "/bags/next-id", nil, &next)
	s.Equal("BAG_000003", next["bag_id"])

	var pending []bagResponse
	s.do(http.MethodGet, "/bags?status=pending", nil, &pending)
	s.Len(pending, 1)

	resp = s.do(http.MethodPatch, fmt.Sprintf("/bags/%d", first.ID), map[string]any{"processed": false}, nil)
	s.Equal(http.StatusBadRequest, resp.StatusCode)

	var upd bagResponse
	resp = s.do(http.MethodPatch, fmt.Sprintf("/bags/%d", first.ID), map[string]any{"quality_grade": "B", "clear_weight": true}, &upd)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(models.QualityGradeB, upd.QualityGrade)
	s.False(upd.WeightKg.Valid)

	resp = s.do(http.MethodGet, "/bags/by-bag-id/BAG_12", nil, nil)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *APISuite) TestBulkBagOperations() {
	socket := s.createSocket("S1", false)
	bt := s.createBagType(socket, "T1", "IN")
	var ids []int64
	for i := 0; i < 3; i++ {
		var b bagResponse
		s.do(http.MethodPost, "/bags", map[string]any{"socket": socket, "bag_type": bt}, &b)
		ids = append(ids, b.ID)
	}

	var res bulkResult
	resp := s.do(http.MethodPost, "/bags/bulk/extra", map[string]any{"ids": ids[:2], "extra": true}, &res)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.EqualValues(2, res.Updated)

	resp = s.do(http.MethodPost, "/bags/bulk/extra", map[string]any{"ids": ids}, nil)
	s.Equal(http.StatusBadRequest, resp.StatusCode)

	resp = s.do(http.MethodPost, "/bags/bulk/source", map[string]any{"ids": ids, "bag_source": "OUT"}, &res)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.EqualValues(3, res.Updated)

	var b bagResponse
	s.do(http.MethodGet, fmt.Sprintf("/bags/%d", ids[2]), nil, &b)
	s.False(b.Extra)
	s.Equal(models.BagSourceOut, b.Source)
}

func (s *APISuite) TestAssignPerson() {
	socket := s.createSocket("S1", false)
	bt := s.createBagType(socket, "T1", "IN")
	var p models.SortingPerson
	resp := s.do(http.MethodPost, "/persons", map[string]any{"name": "Ann", "person_id": "P1"}, &p)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	var b bagResponse
	s.do(http.MethodPost, "/bags", map[string]any{"socket": socket, "bag_type": bt}, &b)

	s.do(http.MethodPut, fmt.Sprintf("/bags/%d/person", b.ID), map[string]any{"person": p.ID}, &b)
	s.Require().NotNil(b.PersonID)
	s.Equal(p.ID, *b.PersonID)

	s.do(http.MethodPut, fmt.Sprintf("/bags/%d/person", b.ID), map[string]any{"person": nil}, &b)
	s.Nil(b.PersonID)
}

func (s *APISuite) TestSortedBags() {
	socket := s.createSocket("S1", false)
	bt := s.createBagType(socket, "T1", "IN")
	var b bagResponse
	s.do(http.MethodPost, "/bags", map[string]any{"socket": socket, "bag_type": bt, "processed": true}, &b)

	var sb models.SortedBag
	resp := s.do(http.MethodPost, "/sorted-bags", map[string]any{"bag": b.ID, "destination": "retail"}, &sb)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	s.Equal(models.ShipmentStatusPending, sb.Status)
	s.Nil(sb.ShippedAt)

	resp = s.do(http.MethodPost, "/sorted-bags", map[string]any{"bag": b.ID, "destination": "outlet"}, nil)
	s.Equal(http.StatusConflict, resp.StatusCode)

	resp = s.do(http.MethodPatch, fmt.Sprintf("/sorted-bags/%d", sb.ID), map[string]any{"status": "shipped"}, &sb)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.NotNil(sb.ShippedAt)

	var byBag models.SortedBag
	resp = s.do(http.MethodGet, fmt.Sprintf("/bags/%d/sorted-bag", b.ID), nil, &byBag)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(sb.ID, byBag.ID)

	var list []models.SortedBag
	s.do(http.MethodGet, "/sorted-bags?status=delivered", nil, &list)
	s.Empty(list)

	resp = s.do(http.MethodPost, "/sorted-bags", map[string]any{"bag": b.ID, "destination": "moon"}, nil)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *APISuite) TestWizardFlow() {
	sep := s.createSocket("SEP", true)
	bt := s.createBagType(sep, "AGR", "IN", "Standard", "Extra")

	var st wizard.State
	resp := s.do(http.MethodPost, "/wizard", nil, &st)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	s.Equal(models.WizardStepSocket, st.Next)
	id := st.Draft.ID
	s.Equal("/wizard/"+id, resp.Header.Get("Location"))

	resp = s.do(http.MethodPut, "/wizard/"+id+"/socket", map[string]any{"socket": sep, "bag_source": "IN"}, &st)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal(models.WizardStepBagType, st.Next)
	s.Equal("SEP station (IN)", st.SocketInfo)

	resp = s.do(http.MethodPut, "/wizard/"+id+"/bag-type", map[string]any{"bag_type": bt, "parameter": "Extra"}, &st)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal(models.WizardStepWeight, st.Next)

	resp = s.do(http.MethodPut, "/wizard/"+id+"/weight", map[string]any{"weight_kg": "7.25"}, &st)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal(models.WizardStepSummary, st.Next)

	var committed wizardCommitResponse
	resp = s.do(http.MethodPost, "/wizard/"+id+"/commit", nil, &committed)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	s.Equal("BAG_000001", committed.Bag.BagID)
	s.True(committed.Bag.Extra)
	s.Equal("AGR type (Extra)", committed.BagTypeDisplay)
	s.Len(committed.Actions, 3)

	resp = s.do(http.MethodPost, "/wizard/"+id+"/commit", nil, nil)
	s.Equal(http.StatusConflict, resp.StatusCode)

	resp = s.do(http.MethodPost, "/wizard/"+id+"/continue", map[string]any{"action": "continue_same_socket"}, &st)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal(models.WizardStepBagType, st.Next)
	s.Equal(sep, st.Draft.SocketID)

	resp = s.do(http.MethodPost, "/wizard/"+id+"/continue", map[string]any{"action": "finish"}, nil)
	s.Equal(http.StatusNoContent, resp.StatusCode)

	resp = s.do(http.MethodGet, "/wizard/"+id, nil, nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *APISuite) TestWizardMissingStepRedirects() {
	var st wizard.State
	s.do(http.MethodPost, "/wizard", nil, &st)
	id := st.Draft.ID

	var body errorBody
	resp := s.do(http.MethodPut, "/wizard/"+id+"/weight", map[string]any{"weight_kg": "1"}, &body)
	s.Equal(http.StatusSeeOther, resp.StatusCode)
	s.Equal("/wizard/"+id+"?step=socket", resp.Header.Get("Location"))
	s.Equal("missing_prerequisite", body.Error.Code)

	resp = s.do(http.MethodPost, "/wizard/"+id+"/commit", nil, nil)
	s.Equal(http.StatusSeeOther, resp.StatusCode)
}

func (s *APISuite) TestStats() {
	socket := s.createSocket("S1", false)
	bt := s.createBagType(socket, "T1", "IN")
	s.do(http.MethodPost, "/bags", map[string]any{"socket": socket, "bag_type": bt}, nil)

	var st models.DashboardStats
	resp := s.do(http.MethodGet, "/stats", nil, &st)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(1, st.TotalBags)
	s.Equal(1, st.PendingBags)
	s.Len(st.RecentBags, 1)
}

func TestDecodeBodyFallsBackToStructFieldName(t *testing.T) {
	type counter struct {
		Count int `validate:"min=2"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"Count":1}`))

	var reqErr *requestError
	require.ErrorAs(t, decodeBody(r, &counter{}), &reqErr)
	require.Equal(t, "must be at least 2", reqErr.fields["Count"])
}

func TestDecodeBodyEmpty(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", http.NoBody)

	var reqErr *requestError
	require.ErrorAs(t, decodeBody(r, &personRequest{}), &reqErr)
	require.Equal(t, "request body is empty", reqErr.msg)
}
