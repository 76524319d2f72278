package models

import (
	"encoding/json"
	"maps"
)

// Result is a search hit: the metadata of the matched record plus a
// preview of the matched text and a download link.
type Result struct {
	Metadata Metadata
	Preview  string
	URL      string
	// Distance is the embedding distance of the accepted hit. Zero for
	// exact matches.
	Distance float32
}

// ID returns the record identifier of the hit.
func (r Result) ID() string {
	return r.Metadata.ID()
}

// MarshalJSON flattens the metadata next to the preview and url keys.
func (r Result) MarshalJSON() ([]byte, error) {
	out := make(map[string]string, len(r.Metadata)+2)
	maps.Copy(out, r.Metadata)
	out["preview"] = r.Preview
	if r.URL != "" {
		out["url"] = r.URL
	}
	return json.Marshal(out)
}

// AssetFiles groups file results under their parent asset.
type AssetFiles struct {
	AssetID      string   `json:"Asset_Id"`
	AssetTitle   string   `json:"Asset_Title"`
	CreationDate string   `json:"Creation_Date"`
	Description  string   `json:"Description"`
	AssetURL     string   `json:"Asset_Url"`
	Files        []Result `json:"Asset_Files"`
}
