package server

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/headline-goat/splitgoat/internal/dashboard"
	"github.com/headline-goat/splitgoat/internal/stats"
)

// Dashboard template data structures
type layoutData struct {
	Title   string
	CSS     template.CSS
	Content template.HTML
}

type listData struct {
	Experiments []experimentListItem
}

type experimentListItem struct {
	ID             string
	Name           string
	Status         string
	VariantCount   int
	Users          int
	Conversions    int
	ConversionRate string
	CreatedAt      string
}

type detailData struct {
	Experiment        experimentDetailItem
	Variants          []detailVariant
	Confident         bool
	ConfidencePercent float64
	Leading           string
	TotalConversions  int
}

type experimentDetailItem struct {
	Name        string
	Description string
	Status      string
	CreatedAt   string
}

type detailVariant struct {
	Variant        string
	Allocation     int
	Users          int
	Conversions    int
	RatePercent    float64
	CILowerPercent float64
	CIUpperPercent float64
	TotalValue     float64
	Leading        bool
}

func (s *Server) handleDashboard(c echo.Context) error {
	// Handle logout
	if c.QueryParam("logout") == "1" {
		c.SetCookie(&http.Cookie{
			Name:   tokenCookieName,
			Value:  "",
			Path:   "/",
			MaxAge: -1,
		})
		return c.Redirect(http.StatusFound, "/dashboard")
	}

	ctx := c.Request().Context()
	exps := s.registry.List()

	items := make([]experimentListItem, len(exps))
	for i, exp := range exps {
		res, err := s.ledger.Results(ctx, exp.ID)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load results").SetInternal(err)
		}

		users, conversions := 0, 0
		for _, st := range res.Variants {
			users += st.Users
			conversions += st.Conversions
		}

		rate := "0%"
		if users > 0 {
			rate = formatPercentage(float64(conversions) / float64(users) * 100)
		}

		items[i] = experimentListItem{
			ID:             exp.ID,
			Name:           exp.Name,
			Status:         string(exp.Status),
			VariantCount:   len(exp.Variants),
			Users:          users,
			Conversions:    conversions,
			ConversionRate: rate,
			CreatedAt:      exp.CreatedAt.Format("Jan 2, 2006"),
		}
	}

	return s.renderDashboard(c, "Experiments", "list.html", listData{Experiments: items})
}

func (s *Server) handleDashboardExperiment(c echo.Context) error {
	exp, ok := s.registry.Lookup(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Experiment not found")
	}

	res, err := s.ledger.Results(c.Request().Context(), exp.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load results").SetInternal(err)
	}
	analysis := stats.Analyze(res)

	variants := make([]detailVariant, len(analysis.Variants))
	for i, v := range analysis.Variants {
		variants[i] = detailVariant{
			Variant:        string(v.Variant),
			Allocation:     exp.TrafficAllocation[v.Variant],
			Users:          v.Users,
			Conversions:    v.Conversions,
			RatePercent:    v.Rate * 100,
			CILowerPercent: v.CILower * 100,
			CIUpperPercent: v.CIUpper * 100,
			TotalValue:     v.TotalValue,
			Leading:        v.Variant == analysis.Leading && len(analysis.Variants) > 1,
		}
	}

	data := detailData{
		Experiment: experimentDetailItem{
			Name:        exp.Name,
			Description: exp.Description,
			Status:      string(exp.Status),
			CreatedAt:   exp.CreatedAt.Format("Jan 2, 2006"),
		},
		Variants:          variants,
		Confident:         analysis.Confident,
		ConfidencePercent: analysis.ConfidenceLevel * 100,
		Leading:           string(analysis.Leading),
		TotalConversions:  res.TotalConversions,
	}

	return s.renderDashboard(c, exp.Name, "detail.html", data)
}

func (s *Server) renderDashboard(c echo.Context, title, contentTemplate string, data any) error {
	cssBytes, err := dashboard.Assets.ReadFile("assets/style.css")
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load styles").SetInternal(err)
	}

	contentTmpl, err := template.ParseFS(dashboard.Templates, "templates/"+contentTemplate)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to parse template").SetInternal(err)
	}

	var contentBuf bytes.Buffer
	if err := contentTmpl.Execute(&contentBuf, data); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to render template").SetInternal(err)
	}

	layoutTmpl, err := template.ParseFS(dashboard.Templates, "templates/layout.html")
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to parse layout").SetInternal(err)
	}

	var page bytes.Buffer
	err = layoutTmpl.Execute(&page, layoutData{
		Title:   title,
		CSS:     template.CSS(cssBytes),
		Content: template.HTML(contentBuf.String()),
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to render page").SetInternal(err)
	}

	return c.HTMLBlob(http.StatusOK, page.Bytes())
}

func formatPercentage(p float64) string {
	if p < 0.01 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", p)
}
