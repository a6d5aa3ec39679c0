package main

import (
	"bytes"
	"context"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/BearBump/SortBox/internal/models"
	"github.com/BearBump/SortBox/internal/services/bags"
	"github.com/BearBump/SortBox/internal/services/catalog"
	"github.com/BearBump/SortBox/internal/storage/memsorting"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

type CtlSuite struct {
	suite.Suite
	store   *memsorting.Store
	catalog *catalog.Service
	bags    *bags.Service
	closed  int
}

func TestCtlSuite(t *testing.T) {
	suite.Run(t, new(CtlSuite))
}

func (s *CtlSuite) SetupTest() {
	s.store = memsorting.New()
	s.catalog = catalog.New(s.store, nil, 0, nil, zerolog.Nop())
	s.bags = bags.New(s.store, nil, nil, zerolog.Nop(), bags.Options{})
	s.closed = 0
}

func (s *CtlSuite) exec(stdin string, args ...string) (string, error) {
	open := func(cmd *cobra.Command) (*env, error) {
		return &env{
			catalog: s.catalog,
			bags:    s.bags,
			in:      cmd.InOrStdin(),
			out:     cmd.OutOrStdout(),
			close:   func() { s.closed++ },
		}, nil
	}
	root := newRootCmd(open)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (s *CtlSuite) socket(code string) *models.Socket {
	so := &models.Socket{SocketID: code, Name: code + " station", Color: "#3B82F6", IsActive: true}
	s.Require().NoError(s.catalog.CreateSocket(context.Background(), so))
	return so
}

func (s *CtlSuite) bagType(so *models.Socket, code string) *models.BagType {
	bt := &models.BagType{
		Name: code, Code: code, Order: 1, Source: models.BagSourceIn, IsActive: true, SocketID: so.ID,
		Parameters: models.ParameterSet(0).With(models.ParameterStandard),
	}
	s.Require().NoError(s.catalog.CreateBagType(context.Background(), bt))
	return bt
}

func (s *CtlSuite) TestSocketsList() {
	s.socket("S1")
	s.socket("S2")

	out, err := s.exec("", "sockets", "list")
	s.Require().NoError(err)
	s.Contains(out, "S1 station")
	s.Contains(out, "S2 station")
	s.Equal(1, s.closed)
}

func (s *CtlSuite) TestSocketsImpact() {
	so := s.socket("S1")
	s.bagType(so, "T1")

	out, err := s.exec("", "sockets", "impact", "S1")
	s.Require().NoError(err)
	s.Contains(out, "WARNING")
	s.Contains(out, "bag types:   1")
}

func (s *CtlSuite) TestSocketsDeleteAbortsOnWrongCode() {
	so := s.socket("S1")
	s.bagType(so, "T1")

	out, err := s.exec("nope\n", "sockets", "delete", "S1")
	s.Require().NoError(err)
	s.Contains(out, "Type the socket code (S1)")
	s.Contains(out, "aborted")

	_, err = s.catalog.GetSocket(context.Background(), so.ID)
	s.Require().NoError(err)
}

func (s *CtlSuite) TestSocketsDeleteConfirmedByCode() {
	so := s.socket("S1")
	s.bagType(so, "T1")

	out, err := s.exec("S1\n", "sockets", "delete", "S1")
	s.Require().NoError(err)
	s.Contains(out, "socket S1 deleted (1 bag types")

	_, err = s.catalog.GetSocket(context.Background(), so.ID)
	s.True(errors.Is(err, models.ErrNotFound))
}

func (s *CtlSuite) TestSocketsDeleteWithYesSkipsPrompt() {
	so := s.socket("S1")
	s.bagType(so, "T1")

	out, err := s.exec("", "sockets", "delete", "--yes", "S1")
	s.Require().NoError(err)
	s.NotContains(out, "Type the socket code")

	_, err = s.catalog.GetSocket(context.Background(), so.ID)
	s.True(errors.Is(err, models.ErrNotFound))
}

func (s *CtlSuite) TestSocketsDeleteUnknown() {
	_, err := s.exec("", "sockets", "delete", "NOPE")
	s.Require().Error(err)
	s.True(errors.Is(err, models.ErrNotFound))
}

func (s *CtlSuite) TestReorderSockets() {
	a := s.socket("A")
	b := s.socket("B")

	_, err := s.exec("", "reorder", "socket", itoa(b.ID), itoa(a.ID))
	s.Require().NoError(err)

	list, err := s.catalog.ListSockets(context.Background(), false)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal("B", list[0].SocketID)
	s.Equal(1, list[0].Order)
}

func (s *CtlSuite) TestReorderRejectsBadKind() {
	a := s.socket("A")
	_, err := s.exec("", "reorder", "shelves", itoa(a.ID))
	s.Require().Error(err)
	s.True(errors.Is(err, models.ErrValidation))
}

func (s *CtlSuite) TestBagTypesSetSource() {
	so := s.socket("S1")
	bt := s.bagType(so, "T1")

	out, err := s.exec("", "bagtypes", "set-source", "--source", "out", itoa(bt.ID))
	s.Require().NoError(err)
	s.Contains(out, "OK 1 updated")

	got, err := s.catalog.GetBagType(context.Background(), bt.ID)
	s.Require().NoError(err)
	s.Equal(models.BagSourceOut, got.Source)

	_, err = s.exec("", "bagtypes", "set-source", "--source", "sideways", itoa(bt.ID))
	s.Require().Error(err)
}

func (s *CtlSuite) TestBagsBulkExtraAndList() {
	ctx := context.Background()
	so := s.socket("S1")
	bt := s.bagType(so, "T1")
	bag, err := s.bags.Create(ctx, models.BagCreateInput{SocketID: so.ID, BagTypeID: bt.ID})
	s.Require().NoError(err)

	out, err := s.exec("", "bags", "set-extra", itoa(bag.ID))
	s.Require().NoError(err)
	s.Contains(out, "OK 1 updated")

	got, err := s.bags.Get(ctx, bag.ID)
	s.Require().NoError(err)
	s.True(got.Extra)

	_, err = s.exec("", "bags", "set-extra", "--extra=false", itoa(bag.ID))
	s.Require().NoError(err)
	got, err = s.bags.Get(ctx, bag.ID)
	s.Require().NoError(err)
	s.False(got.Extra)

	out, err = s.exec("", "bags", "list", "--status", "pending")
	s.Require().NoError(err)
	s.Contains(out, bag.BagID)
	s.Contains(out, "pending")

	_, err = s.exec("", "bags", "list", "--status", "lost")
	s.Require().Error(err)
}

func (s *CtlSuite) TestStats() {
	ctx := context.Background()
	so := s.socket("S1")
	bt := s.bagType(so, "T1")
	_, err := s.bags.Create(ctx, models.BagCreateInput{SocketID: so.ID, BagTypeID: bt.ID, Processed: true})
	s.Require().NoError(err)

	out, err := s.exec("", "stats")
	s.Require().NoError(err)
	s.Contains(out, "Active sockets: 1")
	s.Contains(out, "Bags:           1 (1 processed, 0 pending)")
}

func (s *CtlSuite) TestInvalidID() {
	_, err := s.exec("", "subtypes", "clear-category", "x1")
	s.Require().Error(err)
	s.Contains(err.Error(), `invalid id "x1"`)
}

func TestOpenErrorIsReturned(t *testing.T) {
	root := newRootCmd(func(*cobra.Command) (*env, error) {
		return nil, errors.New("no config")
	})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"stats"})
	err := root.Execute()
	require.EqualError(t, err, "no config")
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
