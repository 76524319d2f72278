package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"records-rag/internal/models"
	"records-rag/internal/records"
)

// Joiner attaches file results to the knowledge asset they are linked to.
type Joiner struct {
	source records.Source
}

func NewJoiner(source records.Source) *Joiner {
	return &Joiner{source: source}
}

var errNoLink = errors.New("file is not linked to an asset")

// JoinAssets groups files under their parent asset. Entries follow the
// order in which each asset is first reached; files whose asset cannot be
// resolved are logged and left out. Cancellation stops the join and
// returns what was grouped so far.
func (j *Joiner) JoinAssets(ctx context.Context, files []models.Result) ([]models.AssetFiles, error) {
	entries := []models.AssetFiles{}
	index := map[string]int{}
	assets := map[string]models.Metadata{}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return entries, err
		}
		asset, err := j.parentAsset(ctx, file, assets)
		if err != nil {
			log.Warn().Err(err).Str("id", file.ID()).Msg("cannot resolve parent asset")
			continue
		}
		assetID := asset.ID()
		if i, ok := index[assetID]; ok {
			entries[i].Files = append(entries[i].Files, file)
			continue
		}
		index[assetID] = len(entries)
		entries = append(entries, models.AssetFiles{
			AssetID:      assetID,
			AssetTitle:   asset[models.FieldTitle],
			CreationDate: creationDate(asset[models.FieldCreatedDate]),
			Description:  asset[models.FieldDescription],
			AssetURL:     asset[models.FieldURL],
			Files:        []models.Result{file},
		})
	}
	return entries, nil
}

// parentAsset follows file -> ContentDocumentLink -> Knowledge__kav. The
// last link wins when a document is linked more than once.
func (j *Joiner) parentAsset(ctx context.Context, file models.Result, cache map[string]models.Metadata) (models.Metadata, error) {
	docID := file.Metadata[models.FieldContentDocumentID]
	if docID == "" {
		return nil, fmt.Errorf("%w: missing %s", errNoLink, models.FieldContentDocumentID)
	}
	links, err := j.source.FetchLinked(ctx, models.FieldContentDocumentID, docID, models.EntityDocumentLink, models.FieldLinkedEntityID)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, errNoLink
	}
	assetID := links[len(links)-1][models.FieldLinkedEntityID]
	if assetID == "" {
		return nil, errNoLink
	}
	if md, ok := cache[assetID]; ok {
		return md, nil
	}
	md, err := j.source.FetchMetadata(ctx, assetID, models.JoinAssetFields, models.EntityKnowledge)
	if err != nil {
		return nil, err
	}
	md = md.Clone()
	md[models.FieldID] = assetID
	cache[assetID] = md
	return md, nil
}

// creationDate renders a Salesforce datetime as YYYY/MM/DD.
func creationDate(s string) string {
	date, _, _ := strings.Cut(s, "T")
	return strings.ReplaceAll(date, "-", "/")
}
