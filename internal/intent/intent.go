// Package intent assigns each query a coarse support category by keyword
// matching. The category feeds analytics and the query log; it never gates
// retrieval, so a wrong guess costs nothing but a mislabeled row.
package intent

import "strings"

// Intent is a coarse query category.
type Intent string

const (
	InfoGeneral   Intent = "info_general"
	Planes        Intent = "planes"
	SLA           Intent = "sla"
	Tickets       Intent = "tickets"
	Mantenimiento Intent = "mantenimiento"
	FAQ           Intent = "faq"
	Unknown       Intent = "unknown"
)

// Classification is the result of classifying one query.
type Classification struct {
	// Intent is the winning category, Unknown when nothing matched.
	Intent Intent

	// Confidence grows with the number of matched keywords, capped at 1.
	Confidence float64

	// Matched lists the keywords of the winning category found in the query.
	Matched []string
}

// pattern pairs a category with its trigger keywords. Patterns are ordered;
// on a tie the earlier category wins, keeping classification deterministic.
type pattern struct {
	intent   Intent
	keywords []string
}

// Classifier matches queries against fixed keyword tables. It is stateless
// and safe for concurrent use.
type Classifier struct {
	patterns []pattern
}

// NewClassifier builds the classifier with the built-in keyword tables.
func NewClassifier() *Classifier {
	return &Classifier{patterns: []pattern{
		{Planes, []string{
			"plan", "planes", "precio", "costo", "paquete", "tier",
			"basic", "professional", "enterprise", "cuanto cuesta",
			"contratar", "servicio", "ofrecen",
		}},
		{SLA, []string{
			"sla", "tiempo", "respuesta", "cuanto tarda", "cuando",
			"prioridad", "urgente", "critical", "high", "medium", "low",
			"horario", "disponibilidad",
		}},
		{Tickets, []string{
			"ticket", "incidente", "problema", "issue", "reporte",
			"solicitud", "caso", "abrir ticket", "crear ticket",
			"estado", "seguimiento",
		}},
		{Mantenimiento, []string{
			"mantenimiento", "preventivo", "actualizacion", "backup",
			"maintenance", "update", "parche", "patch", "monitoreo",
		}},
		{FAQ, []string{
			"como", "donde", "cuando", "porque", "que es", "puedo",
			"debo", "necesito", "requisito", "incluye",
		}},
		{InfoGeneral, []string{
			"knowligo", "empresa", "compañía", "quienes son", "que hacen",
			"sobre", "contacto", "ubicacion",
		}},
	}}
}

// Classify picks the category with the most keyword matches. Confidence is
// matches/3 capped at 1; a query matching nothing is Unknown with
// confidence 0.
func (c *Classifier) Classify(query string) Classification {
	lower := strings.ToLower(query)

	best := Classification{Intent: Unknown}
	bestCount := 0
	for _, p := range c.patterns {
		var matched []string
		for _, kw := range p.keywords {
			if strings.Contains(lower, kw) {
				matched = append(matched, kw)
			}
		}
		if len(matched) > bestCount {
			bestCount = len(matched)
			best = Classification{Intent: p.intent, Matched: matched}
		}
	}
	if bestCount == 0 {
		return best
	}

	best.Confidence = float64(bestCount) / 3
	if best.Confidence > 1 {
		best.Confidence = 1
	}
	return best
}
