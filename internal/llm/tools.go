package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/expr-lang/expr"
	"github.com/tmc/langchaingo/llms"
)

// Tool is a function the model may invoke mid-exchange. Arguments
// arrive as a JSON object string; the result is a JSON string handed
// back to the model. Execution problems are reported to the model
// in-band through an "error" field, never as a Go error, so a bad
// expression does not abort the exchange.
type Tool interface {
	Definition() llms.Tool
	Call(ctx context.Context, args string) string
}

// DefaultTools returns the toolset offered to the model on every
// exchange: a calculator and a chart data generator.
func DefaultTools() []Tool {
	return []Tool{calculatorTool{}, chartTool{}}
}

func toolJSON(v any) string {
	out, err := json.Marshal(v)
	if err != nil {
		return `{"error":"unencodable tool result"}`
	}
	return string(out)
}

func toolError(msg string) string {
	return toolJSON(map[string]string{"error": msg})
}

// calculatorTool evaluates a math expression for the model.
type calculatorTool struct{}

func (calculatorTool) Definition() llms.Tool {
	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        "calculate",
			Description: "Calculate a math expression",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"expression": map[string]any{
						"type":        "string",
						"description": "The math expression to calculate",
					},
				},
				"required": []string{"expression"},
			},
		},
	}
}

func (calculatorTool) Call(ctx context.Context, args string) string {
	var in struct {
		Expression string `json:"expression"`
	}
	if err := json.Unmarshal([]byte(args), &in); err != nil {
		return toolError("invalid arguments: " + err.Error())
	}
	result, err := expr.Eval(in.Expression, nil)
	if err != nil {
		return toolError(err.Error())
	}
	return toolJSON(map[string]string{"result": fmt.Sprint(result)})
}

// chartTool generates plottable data series.
type chartTool struct{}

const chartMaxPoints = 100

func (chartTool) Definition() llms.Tool {
	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        "generate_chart",
			Description: "Generate data for a chart",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"chart_type": map[string]any{
						"type":        "string",
						"enum":        []string{"exponential"},
						"description": "The type of chart to generate",
					},
					"count": map[string]any{
						"type":        "integer",
						"maximum":     chartMaxPoints,
						"description": "The number of data points to generate",
					},
				},
				"required": []string{"chart_type", "count"},
			},
		},
	}
}

type chartPoint struct {
	X int     `json:"x"`
	Y float64 `json:"y"`
}

func (chartTool) Call(ctx context.Context, args string) string {
	var in struct {
		ChartType string `json:"chart_type"`
		Count     int    `json:"count"`
	}
	if err := json.Unmarshal([]byte(args), &in); err != nil {
		return toolError("invalid arguments: " + err.Error())
	}
	if in.ChartType != "exponential" {
		return toolJSON(map[string]string{
			"chart_type": in.ChartType,
			"error":      "unsupported chart type",
		})
	}

	count := in.Count
	if count < 0 {
		count = 0
	}
	if count > chartMaxPoints {
		count = chartMaxPoints
	}
	points := make([]chartPoint, count)
	for i := range points {
		points[i] = chartPoint{X: i, Y: math.Pow(2, float64(i))}
	}
	return toolJSON(map[string]any{"chart_type": in.ChartType, "data": points})
}
