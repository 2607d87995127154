package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"

	"github.com/BaSui01/crewflow/agent/crews"
)

const (
	VenueDetailsFile    = "venue_details.json"
	MarketingReportFile = "marketing_report.md"
)

// VenueDetails 场地协调员的结构化输出。
type VenueDetails struct {
	Name          string `json:"name"`
	Address       string `json:"address"`
	Capacity      int    `json:"capacity"`
	Price         int    `json:"price"`
	BookingStatus string `json:"booking_status"`
}

// 每个 Agent 的搜索工具使用固定查询，由本次运行的输入生成
const (
	venueQuery     = "{venue_type} venues in {event_city} for {event_topic}"
	logisticsQuery = "catering and event equipment rental in {event_city} for {expected_participants} people"
	marketingQuery = "how to promote {event_topic} to {expected_participants} attendees"
)

func init() {
	mustRegister(Entry{
		Name:          "event-planning",
		Description:   "Venue, logistics and marketing agents plan an event; writes venue_details.json and marketing_report.md.",
		Build:         buildEventPlanning,
		DefaultInputs: eventPlanningInputs,
		AfterRun:      printVenueDetails,
	})
}

func eventPlanningInputs() map[string]any {
	return map[string]any{
		"event_topic": "Tech Innovation Conference",
		"event_description": "A gathering of tech innovators " +
			"and industry leaders " +
			"to explore future technologies.",
		"event_city":            "San Francisco",
		"tentative_date":        "2025-09-01",
		"expected_participants": 500,
		"budget":                20000,
		"venue_type":            "Conference Hall",
	}
}

func (d Deps) researchTools(query string) []crews.Tool {
	q := crews.Interpolate(query, d.Inputs)
	return []crews.Tool{fixedSearchTool(d, q), topResultScrapeTool(d, q)}
}

func buildEventPlanning(d Deps) (*crews.Crew, error) {
	venueCoordinator := d.agent(
		"Venue Coordinator",
		"Find the best venue for the event"+
			"based on the requirements and budget.",
		"With a keen sense of space and understanding of event logistics, "+
			"you excel at finding and securing the perfect venue that fits the event's theme,"+
			"audience, size, and budget constraints.",
	)
	venueCoordinator.Tools = d.researchTools(venueQuery)

	logisticsManager := d.agent(
		"Logistics Manager",
		"Manage all logistics for the event, "+
			"including transportation, equipment, and catering.",
		"You're a master of organization and logistics, ensuring that everything "+
			"runs smoothly and efficiently.",
	)
	logisticsManager.Tools = d.researchTools(logisticsQuery)

	marketing := d.agent(
		"Marketing and Communications Manager",
		"Effectively market the event, create enthusiasm for potential participants and "+
			"communicate with the participants.",
		"You're a creative and communicative marketing expert with a "+
			"knack for creating buzz and excitement "+
			"around events to maximize event exposure and participation.",
	)
	marketing.Tools = d.researchTools(marketingQuery)

	venueTask := &crews.Task{
		Name: "venue_task",
		Description: "Find a venue in {event_city} " +
			"that meets the criteria for an event on {event_topic}.",
		ExpectedOutput: "All the details of the venue you found to accommodate the event.",
		HumanInput:     true,
		OutputJSON:     reflect.TypeOf(VenueDetails{}),
		OutputFile:     VenueDetailsFile,
		Agent:          venueCoordinator,
	}

	logisticsTask := &crews.Task{
		Name: "logistics_task",
		Description: "Coordinate the catering and equipment for an event " +
			"with {expected_participants} participants " +
			"on {tentative_date}.",
		ExpectedOutput: "Confirmation of all logistics arrangements " +
			"including catering and equipment setup.",
		HumanInput:     true,
		AsyncExecution: true,
		Agent:          logisticsManager,
	}

	marketingTask := &crews.Task{
		Name: "marketing_task",
		Description: "Promote the event on {event_topic} " +
			"aiming to engage at least {expected_participants} potential attendees.",
		ExpectedOutput: "Report on marketing activities and attendee engagement formatted as markdown.",
		OutputFile:     MarketingReportFile,
		Agent:          marketing,
	}

	return &crews.Crew{
		Name:    "event-planning",
		Agents:  []*crews.Agent{venueCoordinator, logisticsManager, marketing},
		Tasks:   []*crews.Task{venueTask, logisticsTask, marketingTask},
		Verbose: d.Verbose,
		Logger:  d.Logger,
	}, nil
}

// printVenueDetails 读回本次运行写出的 venue_details.json 并打印。
func printVenueDetails(out *crews.CrewOutput, outputDir string, w io.Writer) error {
	path, err := venueDetailsPath(out, outputDir)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read venue details: %w", err)
	}
	var details VenueDetails
	if err := json.Unmarshal(data, &details); err != nil {
		return fmt.Errorf("decode venue details: %w", err)
	}
	pretty, err := json.MarshalIndent(details, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(pretty))
	return err
}

// venueDetailsPath 优先使用场地任务实际写出的路径
func venueDetailsPath(out *crews.CrewOutput, outputDir string) (string, error) {
	if out != nil {
		for _, t := range out.TasksOutput {
			if t != nil && t.OutputPath != "" && filepath.Base(t.OutputPath) == VenueDetailsFile {
				return t.OutputPath, nil
			}
		}
	}
	return crews.ResolveOutputPath(outputDir, VenueDetailsFile)
}
