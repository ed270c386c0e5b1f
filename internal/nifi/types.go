package nifi

import (
	"time"

	"github.com/goccy/go-json"
)

// ComponentEntity is the envelope the API uses for processors, connections,
// controller services and reporting tasks. Component and Status are kept as
// generic documents because the set of metric keys read from them is
// configurable.
type ComponentEntity struct {
	ID        string         `json:"id"`
	Component map[string]any `json:"component"`
	Status    map[string]any `json:"status"`
}

// ProcessGroupEntity identifies a process group in the flow hierarchy.
type ProcessGroupEntity struct {
	ID        string `json:"id"`
	Component struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"component"`
}

type processorsResponse struct {
	Processors []ComponentEntity `json:"processors"`
}

type connectionsResponse struct {
	Connections []ComponentEntity `json:"connections"`
}

type processGroupsResponse struct {
	ProcessGroups []ProcessGroupEntity `json:"processGroups"`
}

type controllerServicesResponse struct {
	ControllerServices []ComponentEntity `json:"controllerServices"`
}

type reportingTasksResponse struct {
	ReportingTasks []ComponentEntity `json:"reportingTasks"`
}

type bulletinBoardResponse struct {
	BulletinBoard struct {
		Bulletins []map[string]any `json:"bulletins"`
	} `json:"bulletinBoard"`
}

type systemDiagnosticsResponse struct {
	SystemDiagnostics map[string]any `json:"systemDiagnostics"`
}

type clusterSummaryResponse struct {
	ClusterSummary map[string]any `json:"clusterSummary"`
}

// ProvenanceRequest describes a lineage event search.
type ProvenanceRequest struct {
	MaxResults  int
	StartDate   *time.Time
	EndDate     *time.Time
	EventType   string
	ComponentID string
}

// provenanceDateLayout is the date format the provenance endpoint accepts.
const provenanceDateLayout = "01/02/2006 15:04:05 MST"

type searchTerm struct {
	Value   string `json:"value"`
	Inverse bool   `json:"inverse"`
}

type provenanceRequestBody struct {
	Provenance struct {
		Request struct {
			MaxResults  int                   `json:"maxResults"`
			StartDate   string                `json:"startDate,omitempty"`
			EndDate     string                `json:"endDate,omitempty"`
			SearchTerms map[string]searchTerm `json:"searchTerms,omitempty"`
		} `json:"request"`
	} `json:"provenance"`
}

func (r ProvenanceRequest) body() provenanceRequestBody {
	var b provenanceRequestBody
	req := &b.Provenance.Request
	req.MaxResults = r.MaxResults
	if r.StartDate != nil {
		req.StartDate = r.StartDate.UTC().Format(provenanceDateLayout)
	}
	if r.EndDate != nil {
		req.EndDate = r.EndDate.UTC().Format(provenanceDateLayout)
	}
	if r.EventType != "" || r.ComponentID != "" {
		req.SearchTerms = make(map[string]searchTerm, 2)
		if r.EventType != "" {
			req.SearchTerms["EventType"] = searchTerm{Value: r.EventType}
		}
		if r.ComponentID != "" {
			req.SearchTerms["ProcessorID"] = searchTerm{Value: r.ComponentID}
		}
	}
	return b
}

// ProvenanceQuery is the state of a submitted provenance query. Payload holds
// the complete response document exactly as the API returned it.
type ProvenanceQuery struct {
	ID               string
	Finished         bool
	PercentCompleted int
	Payload          json.RawMessage
}

type provenanceResponse struct {
	Provenance struct {
		ID               string `json:"id"`
		Finished         bool   `json:"finished"`
		PercentCompleted int    `json:"percentCompleted"`
	} `json:"provenance"`
}

func decodeProvenance(data []byte) (*ProvenanceQuery, error) {
	var resp provenanceResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &ProvenanceQuery{
		ID:               resp.Provenance.ID,
		Finished:         resp.Provenance.Finished,
		PercentCompleted: resp.Provenance.PercentCompleted,
		Payload:          json.RawMessage(data),
	}, nil
}
