package config

import (
	"fmt"
	"strings"

	"github.com/okian/crewboard/internal/domain/aggregate"
	"github.com/okian/crewboard/internal/domain/dataset"
	"github.com/okian/crewboard/internal/domain/insight"
	"github.com/okian/crewboard/internal/domain/scoring"
	"github.com/okian/crewboard/internal/report"
)

// DefaultSheetBaseURL is the team's published test spreadsheet.
const DefaultSheetBaseURL = "https://docs.google.com/spreadsheets/d/e/2PACX-1vTRuYovKK1C-FEzJDE5CzN5cubXHqZuXzGzvD69XQa7Lj15PKZfmmzyRC8zpyjhq7hst0yEYHJdWYYM/pub"

// Page names.
const (
	PageEstabilidade = "estabilidade"
	PageGiro         = "giro"
	PageMissoes      = "missoes"
	PageMotores      = "motores"
	PageParametros   = "parametros-pid"
	PageRounds       = "rounds"
	PageSaidas       = "saidas"
)

// SheetURL returns the CSV export of one sheet tab.
func SheetURL(base, gid string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%sgid=%s&single=true&output=csv", base, sep, gid)
}

// DefaultPages returns the seven dashboard pages reading from base.
func DefaultPages(base string) []report.Config {
	return []report.Config{
		estabilidade(base),
		giro(base),
		missoes(base),
		motores(base),
		parametros(base),
		rounds(base),
		saidas(base),
	}
}

func num(name string, required bool, aliases ...string) dataset.FieldSpec {
	return dataset.FieldSpec{Name: name, Kind: dataset.KindNumeric, Required: required, Aliases: aliases}
}

func text(name string, aliases ...string) dataset.FieldSpec {
	return dataset.FieldSpec{Name: name, Kind: dataset.KindText, Aliases: aliases}
}

func category(name string, required bool, aliases ...string) dataset.FieldSpec {
	return dataset.FieldSpec{Name: name, Kind: dataset.KindCategorical, Required: required, Aliases: aliases}
}

// mustExist marks every spec as a column the sheet has to provide.
func mustExist(specs ...dataset.FieldSpec) []dataset.FieldSpec {
	for i := range specs {
		specs[i].MustExist = true
	}
	return specs
}

func metric(name, field string, s aggregate.Stat) aggregate.Metric {
	return aggregate.Metric{Name: name, Field: field, Stat: s}
}

func estabilidade(base string) report.Config {
	return report.Config{
		Page:   PageEstabilidade,
		Title:  "Estabilidade + Velocidade",
		Source: SheetURL(base, "1610789898"),
		Fields: mustExist(
			text("Teste"),
			num("Velocidade", true),
			num("Distância Percorrida (mm)", false),
			num("Distância Alvo (mm)", false),
			num("Erro de Movimento (mm)", true),
			num("Guinada Final", false),
			num("Erro de Guinada", true),
			num("Tempo", true),
		),
		GroupBy: "Velocidade",
		Metrics: []aggregate.Metric{
			metric("Erro_Medio_Mov", "Erro de Movimento (mm)", aggregate.StatMean),
			metric("Variacao_Mov", "Erro de Movimento (mm)", aggregate.StatStd),
			metric("Erro_Medio_Guinada", "Erro de Guinada", aggregate.StatMean),
			metric("Variacao_Guinada", "Erro de Guinada", aggregate.StatStd),
			metric("Tempo_Medio", "Tempo", aggregate.StatMean),
			metric("Tempo_Minimo", "Tempo", aggregate.StatMin),
			metric("Tempo_Maximo", "Tempo", aggregate.StatMax),
			metric("Testes", "Teste", aggregate.StatCount),
		},
		Formulas: []scoring.Formula{
			{Name: "Score_Estabilidade", Terms: []scoring.Term{
				{Metric: "Erro_Medio_Mov"},
				{Metric: "Variacao_Mov"},
				{Metric: "Erro_Medio_Guinada"},
				{Metric: "Variacao_Guinada"},
			}},
			{Name: "Score_Desempenho", Terms: []scoring.Term{
				{Metric: "Score_Estabilidade", Weight: 0.7},
				{Metric: "Tempo_Medio", Weight: 0.3, Kind: scoring.KindTime},
			}},
		},
		Highlights: []report.HighlightSpec{
			{Name: "mais_estavel", Title: "Velocidade mais estável", Metric: "Score_Estabilidade"},
			{Name: "mais_rapida", Title: "Velocidade mais rápida", Metric: "Tempo_Medio"},
			{Name: "melhor_geral", Title: "Melhor desempenho geral", Metric: "Score_Desempenho"},
		},
		Rules: []insight.Rule{
			{Name: "melhor_geral", Severity: insight.SeveritySuccess, Select: insight.SelectMin, Metric: "Score_Desempenho",
				Message: "Velocidade {{.Group}} tem o melhor equilíbrio entre estabilidade e tempo."},
			{Name: "instavel", Severity: insight.SeverityWarning, Select: insight.SelectEach, Metric: "Variacao_Mov", Op: insight.OpGT, Threshold: "variacao_mov",
				Message: `Velocidade {{.Group}} varia {{printf "%.1f" .Value}} mm entre testes. Repetir ensaios.`},
			{Name: "poucos_testes", Severity: insight.SeverityInfo, Select: insight.SelectEach, Metric: "Testes", Op: insight.OpLT, Threshold: "testes_minimos",
				Message: "Velocidade {{.Group}} tem só {{.Count}} teste(s). Registrar mais execuções."},
		},
		Thresholds: map[string]float64{"variacao_mov": 10, "testes_minimos": 3},
	}
}

func giro(base string) report.Config {
	return report.Config{
		Page:   PageGiro,
		Title:  "Análise de Giro",
		Source: SheetURL(base, "2030734909"),
		Fields: []dataset.FieldSpec{
			text("ID Teste"),
			num("Alvo", true),
			num("Giro com Giroscópio", false),
			num("Giro Proporcional com Giroscópio", false),
			num("Tempo", false),
			num("Tempo.1", false),
		},
		Derived: []dataset.DerivedField{
			{Name: "Erro Giro Velocidade Fixa (°)", Op: dataset.OpAbsDiff, Left: "Alvo", Right: "Giro com Giroscópio"},
			{Name: "Erro Giro Proporcional (°)", Op: dataset.OpAbsDiff, Left: "Alvo", Right: "Giro Proporcional com Giroscópio"},
		},
		FilterFields: []string{"Alvo"},
		Metrics: []aggregate.Metric{
			metric("Tempo_Fixo", "Tempo", aggregate.StatMean),
			metric("Tempo_Proporcional", "Tempo.1", aggregate.StatMean),
			metric("Erro_Fixo", "Erro Giro Velocidade Fixa (°)", aggregate.StatMean),
			metric("Erro_Proporcional", "Erro Giro Proporcional (°)", aggregate.StatMean),
			metric("Testes", "ID Teste", aggregate.StatCount),
		},
		Rules: []insight.Rule{
			{Name: "proporcional_rapido", Severity: insight.SeveritySuccess, Select: insight.SelectFirst, Metric: "Tempo_Proporcional",
				Op: insight.OpLT, Threshold: "1", Of: "Tempo_Fixo",
				Message: `O giro proporcional é mais rápido: {{printf "%.2f" .Value}} s contra {{printf "%.2f" .Threshold}} s.`},
			{Name: "proporcional_preciso", Severity: insight.SeveritySuccess, Select: insight.SelectFirst, Metric: "Erro_Proporcional",
				Op: insight.OpLT, Threshold: "1", Of: "Erro_Fixo",
				Message: `O giro proporcional é mais preciso: {{printf "%.2f" .Value}}° de erro médio.`},
			{Name: "fixo_preciso", Severity: insight.SeverityWarning, Select: insight.SelectFirst, Metric: "Erro_Fixo",
				Op: insight.OpLT, Threshold: "1", Of: "Erro_Proporcional",
				Message: "O giro com velocidade fixa está errando menos. Revisar o ganho proporcional."},
			{Name: "sem_diferenca", Severity: insight.SeverityInfo, Select: insight.SelectAlways, Fallback: true,
				Message: "Os dois giros estão empatados nos testes filtrados."},
		},
	}
}

// missionGIDs maps each mission sheet to its tab.
var missionGIDs = map[string]string{ //nolint:gochecknoglobals // static sheet layout
	"M01": "1328389352", "M02": "2081596503", "M03": "1851247677",
	"M04": "1520590222", "M05": "1999701476", "M06": "1653076161",
	"M07": "1775788177", "M08": "855854989", "M09": "667614461",
	"M10": "218456511", "M11": "1002944230", "M12": "1887688551",
	"M13": "202334414", "M14": "838222531", "M15": "703330322",
}

func missoes(base string) report.Config {
	variants := make(map[string]string, len(missionGIDs))
	for m, gid := range missionGIDs {
		variants[m] = SheetURL(base, gid)
	}
	return report.Config{
		Page:           PageMissoes,
		Title:          "Análise de Missões",
		Variants:       variants,
		DefaultVariant: "M01",
		Fields: []dataset.FieldSpec{
			text("ID Teste"),
			num("Pontuação", true),
			text("Mudança"),
			category("Tipo", false),
		},
		FilterFields: []string{"Tipo"},
		Breakdowns:   []string{"Tipo"},
		Metrics: []aggregate.Metric{
			metric("Pontuacao_Maxima", "Pontuação", aggregate.StatMax),
			metric("Pontuacao_Media", "Pontuação", aggregate.StatMean),
			metric("Testes", "ID Teste", aggregate.StatDistinct),
			metric("Mudancas", "Mudança", aggregate.StatCount),
		},
		Rules: []insight.Rule{
			{Name: "media_baixa", Severity: insight.SeverityWarning, Select: insight.SelectFirst, Metric: "Pontuacao_Media",
				Op: insight.OpLT, Threshold: "fracao_maxima", Of: "Pontuacao_Maxima",
				Message: `Média de {{printf "%.1f" .Value}} pontos está longe do melhor resultado. Padronizar a execução.`},
			{Name: "sem_mudancas", Severity: insight.SeverityInfo, Select: insight.SelectFirst, Metric: "Mudancas",
				Op: insight.OpLT, Threshold: "1",
				Message: "Nenhuma mudança registrada ainda para esta missão."},
			{Name: "consistente", Severity: insight.SeveritySuccess, Select: insight.SelectAlways, Fallback: true,
				Message: "Missão consistente. Continuar monitorando."},
		},
		Thresholds: map[string]float64{"fracao_maxima": 0.6},
	}
}

func motores(base string) report.Config {
	return report.Config{
		Page:   PageMotores,
		Title:  "Análise de Motores",
		Source: SheetURL(base, "1089137814"),
		Fields: []dataset.FieldSpec{
			{Name: "Rotacao", Kind: dataset.KindNumeric, Aliases: []string{"Rotação"}, Pattern: `(\d+)`},
			num("Alvo", true),
			category("Motor", true),
			num("Grau", true),
		},
		Unpivot: &dataset.UnpivotSpec{Match: "Motor", IDFields: []string{"Rotacao", "Alvo"}, VarName: "Motor", ValueName: "Grau"},
		Derived: []dataset.DerivedField{
			{Name: "Erro", Op: dataset.OpAbsDiff, Left: "Grau", Right: "Alvo"},
		},
		GroupBy:      "Motor",
		FilterFields: []string{"Motor", "Alvo", "Rotacao"},
		Metrics: []aggregate.Metric{
			metric("Erro_Medio", "Erro", aggregate.StatMean),
			metric("Desvio_Padrao", "Grau", aggregate.StatStd),
			metric("Leituras", "Grau", aggregate.StatCount),
		},
		Highlights: []report.HighlightSpec{
			{Name: "mais_preciso", Title: "Motor mais preciso", Metric: "Erro_Medio"},
		},
		Rules: []insight.Rule{
			{Name: "mais_preciso", Severity: insight.SeveritySuccess, Select: insight.SelectMin, Metric: "Erro_Medio",
				Message: `{{.Group}} é o mais preciso, com erro médio de {{printf "%.2f" .Value}}°.`},
			{Name: "mais_instavel", Severity: insight.SeverityInfo, Select: insight.SelectMax, Metric: "Desvio_Padrao",
				Message: `{{.Group}} é o mais instável (desvio de {{printf "%.2f" .Value}}°).`},
			{Name: "recalibrar", Severity: insight.SeverityWarning, Select: insight.SelectMax, Metric: "Erro_Medio",
				Op: insight.OpGT, Threshold: "erro_maximo",
				Message: `{{.Group}} erra {{printf "%.2f" .Value}}° em média. Recalibrar o motor.`},
		},
		Thresholds: map[string]float64{"erro_maximo": 5},
	}
}

func parametros(base string) report.Config {
	return report.Config{
		Page:   PageParametros,
		Title:  "Parâmetros PID",
		Source: SheetURL(base, "0"),
		Fields: []dataset.FieldSpec{
			category("Resultado", false),
			text("Mudança"),
		},
		GroupBy:      "Resultado",
		FilterFields: []string{"Resultado"},
		Metrics: []aggregate.Metric{
			metric("Testes", "Resultado", aggregate.StatCount),
			metric("Mudancas", "Mudança", aggregate.StatCount),
		},
		Rules: []insight.Rule{
			{Name: "resultado", Severity: insight.SeverityInfo, Select: insight.SelectEach, Metric: "Testes",
				Message: "{{.Group}}: {{.Count}} teste(s)."},
			{Name: "mais_frequente", Severity: insight.SeveritySuccess, Select: insight.SelectMax, Metric: "Testes",
				Message: "Resultado mais frequente: {{.Group}}."},
		},
	}
}

// missionMaxima is the best possible score of each mission.
var missionMaxima = map[string]float64{ //nolint:gochecknoglobals // static game rules
	"M01": 30, "M02": 30, "M03": 40, "M04": 40, "M05": 30, "M06": 30,
	"M07": 30, "M08": 30, "M09": 30, "M10": 30, "M11": 30, "M12": 30,
	"M13": 30, "M14": 35, "M15": 30,
}

func rounds(base string) report.Config {
	return report.Config{
		Page:   PageRounds,
		Title:  "Rounds",
		Source: SheetURL(base, "1674634257"),
		Fields: []dataset.FieldSpec{
			{Name: "Data", Kind: dataset.KindDate, Required: true},
			num("Total", false),
			category("Missao", true),
			num("Pontos", false),
			text("Observação"),
		},
		Unpivot: &dataset.UnpivotSpec{Match: `^M\d+$`, VarName: "Missao", ValueName: "Pontos"},
		Derived: []dataset.DerivedField{
			{Name: "Precisao", Op: dataset.OpPercentOf, Left: "Pontos", KeyField: "Missao", Targets: missionMaxima, Default: 30, ZeroMissing: true},
		},
		DateField:    "Data",
		GroupBy:      "Missao",
		FilterFields: []string{"Missao"},
		Metrics: []aggregate.Metric{
			metric("Precisao_Media", "Precisao", aggregate.StatMean),
			metric("Desvio", "Pontos", aggregate.StatStd),
			metric("Rounds", "Pontos", aggregate.StatCount),
		},
		Highlights: []report.HighlightSpec{
			{Name: "mais_regular", Title: "Missão mais regular", Metric: "Desvio"},
		},
		Rules: []insight.Rule{
			{Name: "total_caindo", Severity: insight.SeverityWarning, Select: insight.SelectTrend, Field: "Total",
				Op: insight.OpLT, Threshold: "0",
				Message: "A pontuação total está caindo. Investigar execução e estratégia."},
			{Name: "total_subindo", Severity: insight.SeveritySuccess, Select: insight.SelectTrend, Field: "Total",
				Op: insight.OpGT, Threshold: "0",
				Message: `A pontuação total subiu {{printf "%.0f" .Value}} pontos no período.`},
			{Name: "melhor_missao", Severity: insight.SeveritySuccess, Select: insight.SelectMax, Metric: "Precisao_Media",
				Message: `Melhor missão: {{.Group}} ({{printf "%.1f" .Value}}%).`},
			{Name: "pior_missao", Severity: insight.SeverityWarning, Select: insight.SelectMin, Metric: "Precisao_Media",
				Op: insight.OpLT, Threshold: "foco",
				Message: "Focar em {{.Group}}"},
			{Name: "irregular", Severity: insight.SeverityWarning, Select: insight.SelectMax, Metric: "Desvio",
				Op: insight.OpGT, Threshold: "desvio_maximo",
				Message: `{{.Group}} é a missão mais irregular (desvio de {{printf "%.1f" .Value}}).`},
			{Name: "quase_perfeita", Severity: insight.SeveritySuccess, Select: insight.SelectEach, Metric: "Precisao_Media",
				Op: insight.OpGT, Threshold: "precisao_alta",
				Message: "{{.Group}} está praticamente perfeita."},
		},
		Thresholds: map[string]float64{"foco": 70, "desvio_maximo": 5, "precisao_alta": 97},
	}
}

func saidas(base string) report.Config {
	variants := map[string]string{
		"saida-1": SheetURL(base, "1008601803"),
		"saida-2": SheetURL(base, "2064448046"),
		"saida-3": SheetURL(base, "1760261047"),
		"saida-4": SheetURL(base, "1456659526"),
		"saida-5": SheetURL(base, "1257836641"),
	}
	return report.Config{
		Page:           PageSaidas,
		Title:          "Saídas",
		Variants:       variants,
		DefaultVariant: "saida-1",
		Fields: []dataset.FieldSpec{
			text("Teste", "nº teste"),
			num("Pontuação", false),
			text("Mudança"),
			text("Resultado"),
		},
		Derived: []dataset.DerivedField{
			{Name: "Sucesso", Op: dataset.OpMatch, Left: "Resultado", Pattern: "Sucesso|OK|1"},
		},
		Metrics: []aggregate.Metric{
			metric("Taxa_Sucesso", "Sucesso", aggregate.StatMean),
			metric("Pontuacao_Media", "Pontuação", aggregate.StatMean),
			metric("Pontuacao_Desvio", "Pontuação", aggregate.StatStd),
			metric("Pontuacao_Maxima", "Pontuação", aggregate.StatMax),
			metric("Tentativas", "Teste", aggregate.StatCount),
		},
		Rules: []insight.Rule{
			{Name: "taxa_baixa", Severity: insight.SeverityWarning, Select: insight.SelectFirst, Metric: "Taxa_Sucesso",
				Op: insight.OpLT, Threshold: "taxa_baixa",
				Message: "Taxa de sucesso baixa. Revisar estratégia e consistência da saída."},
			{Name: "taxa_alta", Severity: insight.SeveritySuccess, Select: insight.SelectFirst, Metric: "Taxa_Sucesso",
				Op: insight.OpGT, Threshold: "taxa_alta",
				Message: "Excelente taxa de sucesso! Manter abordagem atual."},
			{Name: "instavel", Severity: insight.SeverityWarning, Select: insight.SelectFirst, Metric: "Pontuacao_Desvio",
				Op: insight.OpGT, Threshold: "desvio_maximo",
				Message: "Pontuação muito instável. Trabalhar padronização da execução."},
			{Name: "espaco", Severity: insight.SeverityInfo, Select: insight.SelectFirst, Metric: "Pontuacao_Media",
				Op: insight.OpLT, Threshold: "fracao_maxima", Of: "Pontuacao_Maxima",
				Message: "Ainda há grande espaço para melhorar a média de pontuação."},
			{Name: "consistente", Severity: insight.SeveritySuccess, Select: insight.SelectAlways, Fallback: true,
				Message: "Tudo consistente até agora. Continuar monitorando."},
		},
		Thresholds: map[string]float64{"taxa_baixa": 60, "taxa_alta": 85, "desvio_maximo": 10, "fracao_maxima": 0.6},
	}
}
