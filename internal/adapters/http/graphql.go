package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/orbittrack/internal/core/domain"
)

// buildSchema creates the GraphQL schema over the current snapshot.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	trackPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "TrackPoint",
		Fields: graphql.Fields{
			"latitude":  &graphql.Field{Type: graphql.Float},
			"longitude": &graphql.Field{Type: graphql.Float},
			"timestamp": &graphql.Field{Type: graphql.Int},
		},
	})

	failureType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Failure",
		Fields: graphql.Fields{
			"stage":   &graphql.Field{Type: graphql.String},
			"kind":    &graphql.Field{Type: graphql.String},
			"message": &graphql.Field{Type: graphql.String},
			"at":      &graphql.Field{Type: graphql.DateTime},
		},
	})

	stateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "State",
		Fields: graphql.Fields{
			"latitude":         &graphql.Field{Type: graphql.Float},
			"longitude":        &graphql.Field{Type: graphql.Float},
			"displayLatitude":  &graphql.Field{Type: graphql.String},
			"displayLongitude": &graphql.Field{Type: graphql.String},
			"observedAt":       &graphql.Field{Type: graphql.DateTime},
			"loading":          &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
			"version":          &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"lastError":        &graphql.Field{Type: failureType},
			"track": &graphql.Field{
				Type:        graphql.NewList(trackPointType),
				Description: "Projected ground track, optionally windowed",
				Args: graphql.FieldConfigArgument{
					"offset": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: maxPageLimit},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					m, _ := p.Source.(map[string]interface{})
					track, _ := m["track"].(domain.Track)
					offset, _ := p.Args["offset"].(int)
					limit, _ := p.Args["limit"].(int)
					pg := Pagination{Offset: max(offset, 0), Limit: limit, Total: len(track)}
					if pg.Limit <= 0 {
						pg.Limit = maxPageLimit
					}
					start, end := pg.window()
					out := make([]map[string]interface{}, 0, end-start)
					for _, pt := range track[start:end] {
						out = append(out, map[string]interface{}{
							"latitude":  pt.Latitude,
							"longitude": pt.Longitude,
							"timestamp": int(pt.Timestamp),
						})
					}
					return out, nil
				},
			},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"state": &graphql.Field{
				Type:        graphql.NewNonNull(stateType),
				Description: "Latest published tracker state",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return stateFields(deps.State.Snapshot()), nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

func stateFields(s domain.PollState) map[string]interface{} {
	m := map[string]interface{}{
		"loading": s.Loading,
		"version": int(s.Version),
		"track":   s.Track,
	}
	if s.Position != nil {
		d := s.Position.Display()
		m["latitude"] = s.Position.Latitude
		m["longitude"] = s.Position.Longitude
		m["displayLatitude"] = d.Latitude
		m["displayLongitude"] = d.Longitude
		if !s.Position.ObservedAt.IsZero() {
			m["observedAt"] = s.Position.ObservedAt
		}
	}
	if s.LastError != nil {
		m["lastError"] = map[string]interface{}{
			"stage":   string(s.LastError.Stage),
			"kind":    string(s.LastError.Kind),
			"message": s.LastError.Message,
			"at":      s.LastError.At,
		}
	}
	return m
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.Query == "" {
			return errBadRequest(c, "query is required")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		c.Set("Cache-Control", "no-store")
		return c.JSON(result)
	}
}
