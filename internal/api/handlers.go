package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/roach88/oilflow/internal/advance"
	"github.com/roach88/oilflow/internal/export"
	"github.com/roach88/oilflow/internal/intake"
	"github.com/roach88/oilflow/internal/pipeline"
	"github.com/roach88/oilflow/internal/resolver"
	"github.com/roach88/oilflow/internal/stats"
	"github.com/roach88/oilflow/internal/workflow"
)

// stageInfo is the public description of one stage.
type stageInfo struct {
	ID        workflow.Stage    `json:"id"`
	Position  int               `json:"position"`
	Slug      string            `json:"slug"`
	Aliases   []string          `json:"aliases,omitempty"`
	Upstream  workflow.Stage    `json:"upstream,omitempty"`
	SideList  string            `json:"sideList,omitempty"`
	Feeds     string            `json:"feeds,omitempty"`
	Outcomes  []workflow.Status `json:"outcomes"`
	Rejective bool              `json:"rejective"`
	Required  []string          `json:"required,omitempty"`
}

func newStageInfo(p *pipeline.Pipeline, d pipeline.StageDef) stageInfo {
	return stageInfo{
		ID:        d.ID,
		Position:  p.Position(d.ID),
		Slug:      d.Slug,
		Aliases:   d.Aliases,
		Upstream:  d.Upstream,
		SideList:  d.SideList,
		Feeds:     d.Feeds,
		Outcomes:  d.Outcomes,
		Rejective: d.Rejective,
		Required:  d.Required,
	}
}

func (s *Server) listStages(c *gin.Context) {
	p := s.engine.Pipeline()
	defs := p.Stages()
	out := make([]stageInfo, len(defs))
	for i, d := range defs {
		out[i] = newStageInfo(p, d)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) pending(c *gin.Context) {
	f, err := resolver.ParseFilter(c.Query("party"), c.Query("from"), c.Query("to"), c.Query("timeliness"))
	if err != nil {
		badRequest(c, err)
		return
	}
	view, err := s.engine.Pending(c.Request.Context(), c.Param("stage"), f)
	if err != nil {
		fail(c, err)
		return
	}
	if s.exported(c, view.Name, export.Pending(view.Stage, view.Rows)) {
		return
	}
	c.JSON(http.StatusOK, view)
}

// advanceBody is the advance form. Rows use the "order/product" form; Keys
// names rows structurally, for ids that contain a "/".
type advanceBody struct {
	Rows      []string          `json:"rows"`
	Keys      []workflow.RowKey `json:"keys"`
	Status    workflow.Status   `json:"status"`
	Checklist map[string]string `json:"checklist"`
	Payload   workflow.Payload  `json:"payload"`
}

func (s *Server) advance(c *gin.Context) {
	var body advanceBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	req := advance.Request{
		Stage:     c.Param("stage"),
		Status:    body.Status,
		Checklist: body.Checklist,
		Payload:   body.Payload,
	}
	for _, r := range body.Rows {
		req.Rows = append(req.Rows, workflow.ParseRowKey(r))
	}
	req.Rows = append(req.Rows, body.Keys...)

	res, err := s.engine.Advance(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) punch(c *gin.Context) {
	var o intake.Order
	if err := c.ShouldBindJSON(&o); err != nil {
		badRequest(c, err)
		return
	}
	rec, err := s.engine.Punch(c.Request.Context(), o)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (s *Server) order(c *gin.Context) {
	v, err := s.engine.Order(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) takeHandoff(c *gin.Context) {
	item, ok, err := s.engine.TakeHandoff(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *Server) sideList(c *gin.Context) {
	items, err := s.engine.SideList(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, errorBody{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, items)
}

func (s *Server) dashboard(c *gin.Context) {
	rng, err := stats.ParseRange(c.Query("range"))
	if err != nil {
		badRequest(c, err)
		return
	}
	d := s.engine.Dashboard(c.Request.Context(), rng)
	if s.exported(c, "dashboard", export.Dashboard(d)...) {
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) history(c *gin.Context) {
	events := s.engine.History(c.Request.Context())
	if s.exported(c, "history", export.Events(events)) {
		return
	}
	c.JSON(http.StatusOK, events)
}

func (s *Server) replay(c *gin.Context) {
	rep, err := s.engine.Replay(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (s *Server) rebuildCache(c *gin.Context) {
	n, err := s.engine.RebuildCache(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": n})
}

// Spreadsheet content types.
const (
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypeCSV  = "text/csv; charset=utf-8"
)

// exported writes tables when the request asks for ?format=xlsx or csv and
// reports whether it did. CSV carries only the first table.
func (s *Server) exported(c *gin.Context, name any, tables ...export.Table) bool {
	format := strings.ToLower(c.Query("format"))
	if format == "" || format == "json" {
		return false
	}
	base := strings.ReplaceAll(strings.ToLower(fmt.Sprint(name)), " ", "-")

	var (
		buf         bytes.Buffer
		err         error
		contentType string
	)
	switch format {
	case "xlsx":
		contentType = contentTypeXLSX
		err = export.WriteXLSX(&buf, tables...)
	case "csv":
		contentType = contentTypeCSV
		err = export.WriteCSV(&buf, tables[0])
	default:
		badRequest(c, fmt.Errorf("unknown format %q", format))
		return true
	}
	if err != nil {
		fail(c, fmt.Errorf("export %s: %w", base, err))
		return true
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.%s"`, base, format))
	c.Data(http.StatusOK, contentType, buf.Bytes())
	return true
}
