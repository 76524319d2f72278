package models

// Salesforce objects read by the service.
const (
	EntityContentVersion = "ContentVersion"
	EntityKnowledge      = "Knowledge__kav"
	EntityDocumentLink   = "ContentDocumentLink"
)

// Metadata field names.
const (
	FieldID                = "Id"
	FieldTitle             = "Title"
	FieldSummary           = "Summary"
	FieldCreatedDate       = "CreatedDate"
	FieldCreatedByID       = "CreatedById"
	FieldContentDocumentID = "ContentDocumentId"
	FieldFileType          = "FileType"
	FieldFileExtension     = "FileExtension"
	FieldKnowledgeArticle  = "KnowledgeArticleId"
	FieldLanguage          = "Language"
	FieldDescription       = "Description__c"
	FieldURL               = "URL__c"
	FieldLinkedEntityID    = "LinkedEntityId"
)

var (
	// FileFields is the projection stored with every file unit.
	FileFields = []string{
		FieldID,
		FieldCreatedByID,
		FieldContentDocumentID,
		FieldCreatedDate,
		FieldTitle,
		FieldFileType,
	}

	// AssetFields is the projection stored with every asset unit.
	AssetFields = []string{
		FieldID,
		FieldKnowledgeArticle,
		FieldCreatedByID,
		FieldLanguage,
		FieldTitle,
		FieldSummary,
		FieldDescription,
	}

	// JoinAssetFields is fetched for the parent asset of a file result.
	JoinAssetFields = []string{
		FieldID,
		FieldTitle,
		FieldCreatedDate,
		FieldDescription,
		FieldURL,
	}

	// DownloadFields names the file for the download endpoint.
	DownloadFields = []string{FieldTitle, FieldFileExtension}
)

const (
	ContextSeparator = "\n---\n"

	ContextPromptTemplate = `You answer questions about an organisation's documents.
Use only the excerpts below. If they do not contain the answer, say so.

<documents>
%s
</documents>

Question: %s`
)
