package stashbox

// stash-box GraphQL request and response types.

const searchStudioQuery = `query SearchStudio($term: String!, $limit: Int) {
  searchStudio(term: $term, limit: $limit) {
    id
    name
    aliases
    urls { url }
    images { url }
    parent { id name aliases }
  }
}`

const searchPerformerQuery = `query SearchPerformer($term: String!, $limit: Int) {
  searchPerformer(term: $term, limit: $limit) {
    id
    name
    disambiguation
    aliases
    gender
    birth_date
    country
    ethnicity
    urls { url }
    images { url }
  }
}`

const searchTagQuery = `query SearchTag($term: String!, $limit: Int) {
  searchTag(term: $term, limit: $limit) {
    id
    name
    description
    aliases
  }
}`

const versionQuery = `query Version { version { version } }`

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

// searchResponse covers all three search queries; only the field matching
// the query is populated.
type searchResponse struct {
	Data struct {
		SearchStudio    []sbStudio    `json:"searchStudio"`
		SearchPerformer []sbPerformer `json:"searchPerformer"`
		SearchTag       []sbTag       `json:"searchTag"`
		Version         *struct {
			Version string `json:"version"`
		} `json:"version"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type sbURL struct {
	URL string `json:"url"`
}

type sbImage struct {
	URL string `json:"url"`
}

type sbStudioRef struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Aliases []string `json:"aliases"`
}

type sbStudio struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Aliases []string     `json:"aliases"`
	URLs    []sbURL      `json:"urls"`
	Images  []sbImage    `json:"images"`
	Parent  *sbStudioRef `json:"parent"`
}

type sbPerformer struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Disambiguation string    `json:"disambiguation"`
	Aliases        []string  `json:"aliases"`
	Gender         string    `json:"gender"`
	BirthDate      string    `json:"birth_date"`
	Country        string    `json:"country"`
	Ethnicity      string    `json:"ethnicity"`
	URLs           []sbURL   `json:"urls"`
	Images         []sbImage `json:"images"`
}

type sbTag struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Aliases     []string `json:"aliases"`
}
