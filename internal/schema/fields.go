package schema

// fieldDocs documents tool arguments by property name. A name means the same
// thing in every tool that accepts it.
var fieldDocs = map[string]string{
	"agent_id":           "ID of the agent, e.g. agent-<uuid>",
	"agent_ids":          "IDs of the agents to act on",
	"agent_name_filter":  "Substring an agent name must contain",
	"agent_tag_filter":   "Tag an agent must carry",
	"args":               "Arguments passed to the tool when running it",
	"args_json_schema":   "JSON schema of the tool arguments",
	"block_id":           "ID of the memory block, e.g. block-<uuid>",
	"block_label":        "Label of the core memory block, e.g. human or persona",
	"content_type":       "MIME type of the uploaded file; inferred from the file name when omitted",
	"description":        "Human readable description",
	"embedding_config":   "Embedding model configuration",
	"end_date":           "Only match messages created before this RFC 3339 time",
	"env_vars":           "Environment variables available to the tool run",
	"export_data":        "Agent file produced by export",
	"file_data":          "Base64 encoded file content",
	"file_id":            "ID of the file, e.g. file-<uuid>",
	"file_name":          "Name of the uploaded file",
	"filters":            "Criteria selecting the agents to delete",
	"folder_id":          "ID of the folder, e.g. source-<uuid>",
	"include_content":    "Return file content with each file",
	"is_template":        "Only return template blocks when true",
	"job_id":             "ID of the job, e.g. job-<uuid>",
	"json_schema":        "Full JSON schema of the tool",
	"label":              "Label of the memory block",
	"limit":              "Maximum number of items to return (default 50)",
	"llm_config":         "LLM configuration",
	"max_message_length": "Truncate each message in the context window to this many characters",
	"message_id":         "ID of the message, e.g. message-<uuid>",
	"messages":           "Messages to send, each with a role and content",
	"metadata":           "Arbitrary metadata stored with the block",
	"name":               "Name of the resource",
	"oauth_config":       "OAuth settings for the MCP server; accepted but not used",
	"offset":             "Number of items to skip",
	"pagination":         "Paging window; overrides limit and offset",
	"passage_id":         "ID of the archival passage, e.g. passage-<uuid>",
	"pip_requirements":   "Python packages the tool needs",
	"query":              "Search text",
	"request_heartbeat":  "Accepted for compatibility with Letta tool calls; ignored",
	"return_char_limit":  "Maximum characters of tool output returned to the agent",
	"role":               "Message role: user, assistant, system or tool",
	"run_ids":            "IDs of the runs to cancel",
	"search_filters":     "Date and role filters for message search",
	"server_config":      "MCP server configuration: type plus server_url or command",
	"server_name":        "Name of the MCP server",
	"source_code":        "Source code of the tool",
	"source_id":          "ID of the source, e.g. source-<uuid>",
	"source_type":        "Language of source_code: python or javascript",
	"start_date":         "Only match messages created after this RFC 3339 time",
	"stream":             "Stream the response",
	"system":             "System prompt of the agent",
	"tags":               "Tags to set or filter by",
	"text":               "Text of the archival passage",
	"tool_args":          "Arguments for the MCP tool",
	"tool_id":            "ID of the tool, e.g. tool-<uuid>",
	"tool_ids":           "IDs of the tools to attach",
	"tool_name":          "Name of the tool on the MCP server",
	"update_data":        "Fields to change",
	"value":              "Content of the memory block",
	"version":            "Package version constraint",
	"content":            "Message content",
}
