package http

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bluereef/baymonitor/internal/analysis"
	"github.com/bluereef/baymonitor/internal/query"
	"github.com/bluereef/baymonitor/internal/store"
)

// fail translates errors at the boundary, once: validation -> 400 naming the
// parameter, store degradation -> 503, everything else -> sanitized 500.
func (s *Server) fail(c *gin.Context, err error) {
	var badReq *query.BadRequestError
	switch {
	case errors.As(err, &badReq):
		c.JSON(http.StatusBadRequest, gin.H{"error": badReq.Error()})
	case errors.Is(err, store.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "record store unavailable"})
	default:
		log.Printf("internal error on %s: %v", c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	storeStatus := "up"
	if err := s.store.Ping(ctx); err != nil {
		storeStatus = "down"
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "store": storeStatus})
}

func (s *Server) handleObservations(c *gin.Context) {
	spec, err := s.filters.Build(c.Request.URL.Query())
	if err != nil {
		s.fail(c, err)
		return
	}

	ctx, cancel := s.storeCtx(c)
	defer cancel()

	count, err := s.store.Count(ctx, spec.Conditions)
	if err != nil {
		s.fail(c, err)
		return
	}
	items, err := s.store.Find(ctx, spec.Conditions, spec.Skip, spec.Limit, store.Sort{})
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count, "items": items})
}

func (s *Server) handleStats(c *gin.Context) {
	params := c.Request.URL.Query()
	groupBy := params.Get("group_by")
	if groupBy != "" && groupBy != "source" {
		s.fail(c, &query.BadRequestError{Param: "group_by", Msg: "must be \"source\""})
		return
	}

	spec, err := s.filters.BuildIgnoring(params, "group_by")
	if err != nil {
		s.fail(c, err)
		return
	}

	ctx, cancel := s.storeCtx(c)
	defer cancel()

	rows, err := s.store.Find(ctx, spec.Conditions, spec.Skip, spec.Limit, store.Sort{})
	if err != nil {
		s.fail(c, err)
		return
	}

	if groupBy == "source" {
		c.JSON(http.StatusOK, gin.H{"groups": analysis.DescribeGrouped(rows)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": analysis.Describe(rows)})
}

func (s *Server) handleOutliers(c *gin.Context) {
	params := c.Request.URL.Query()

	field := params.Get("field")
	if field == "" {
		s.fail(c, &query.BadRequestError{Param: "field", Msg: "field is required"})
		return
	}
	methodRaw := params.Get("method")
	if methodRaw == "" {
		s.fail(c, &query.BadRequestError{Param: "method", Msg: "method is required"})
		return
	}
	method, ok := analysis.ParseMethod(methodRaw)
	if !ok {
		s.fail(c, &query.BadRequestError{Param: "method", Msg: "must be \"z-score\" or \"iqr\""})
		return
	}
	kRaw := params.Get("k")
	if kRaw == "" {
		s.fail(c, &query.BadRequestError{Param: "k", Msg: "k is required"})
		return
	}
	k, err := strconv.ParseFloat(kRaw, 64)
	if err != nil || k <= 0 {
		s.fail(c, &query.BadRequestError{Param: "k", Msg: "must be a positive number"})
		return
	}
	include := params.Get("include")
	if include == "" {
		include = "rows"
	}
	if include != "rows" && include != "values" && include != "minimal" {
		s.fail(c, &query.BadRequestError{Param: "include", Msg: "must be one of rows, values, minimal"})
		return
	}

	spec, err := s.filters.BuildIgnoring(params, "field", "method", "k", "include")
	if err != nil {
		s.fail(c, err)
		return
	}
	// Detection runs over the whole selection, not the default page, unless
	// the caller asked for explicit pagination.
	if !params.Has("limit") {
		spec.Limit = s.filters.MaxLimit
		if spec.Limit <= 0 {
			spec.Limit = query.MaxLimit
		}
	}

	ctx, cancel := s.storeCtx(c)
	defer cancel()

	rows, err := s.store.Find(ctx, spec.Conditions, spec.Skip, spec.Limit, store.Sort{})
	if err != nil {
		s.fail(c, err)
		return
	}

	flagged, err := analysis.Detect(rows, field, method, k)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": len(flagged), "items": projectFlagged(flagged, field, include)})
}

// projectFlagged shapes flagged rows per the include selector: full records,
// value-only, or index + timestamp + value.
func projectFlagged(flagged []analysis.Flagged, field, include string) []any {
	items := make([]any, 0, len(flagged))
	for _, f := range flagged {
		switch include {
		case "values":
			items = append(items, gin.H{"row_index": f.Index, "value": flaggedValue(f.Record, field)})
		case "minimal":
			items = append(items, gin.H{"row_index": f.Index, "ts": f.Record.Ts, "value": flaggedValue(f.Record, field)})
		default:
			items = append(items, f.Record)
		}
	}
	return items
}

func flaggedValue(o store.Observation, field string) *float64 {
	if field == analysis.FieldAll {
		return nil
	}
	v, _ := o.NumericValue(field)
	return v
}

func (s *Server) handleUpload(c *gin.Context) {
	var records []store.Observation
	if err := c.ShouldBindJSON(&records); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be a JSON array of observation records"})
		return
	}

	ctx, cancel := s.storeCtx(c)
	defer cancel()

	result, err := s.store.UpsertMany(ctx, records)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
