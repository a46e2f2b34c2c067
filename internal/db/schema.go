package db

// SchemaSQL defines every table the assistant reads or writes.
// Foreign keys are stored as plain string ids so records stay portable
// between the SurrealDB and in-memory stores.
const SchemaSQL = `
    -- ==========================================================================
    -- WORKSPACE DATA (owned by the planning app, read by the assistant)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS workspace SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS name ON workspace TYPE string;

    DEFINE TABLE IF NOT EXISTS member SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS workspace_id ON member TYPE string;
    DEFINE FIELD IF NOT EXISTS name ON member TYPE string;
    DEFINE FIELD IF NOT EXISTS role ON member TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS weekly_capacity_hours ON member TYPE float DEFAULT 40.0;
    DEFINE INDEX IF NOT EXISTS member_workspace ON member FIELDS workspace_id;

    DEFINE TABLE IF NOT EXISTS task SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS workspace_id ON task TYPE string;
    DEFINE FIELD IF NOT EXISTS project_id ON task TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS epic_id ON task TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS title ON task TYPE string;
    DEFINE FIELD IF NOT EXISTS description ON task TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS status ON task TYPE string DEFAULT "backlog";
    DEFINE FIELD IF NOT EXISTS priority ON task TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS in_sprint ON task TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS assignee_id ON task TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS estimate_hours ON task TYPE float DEFAULT 0.0;
    DEFINE FIELD IF NOT EXISTS due_date ON task TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS created_at ON task TYPE datetime DEFAULT time::now();
    DEFINE INDEX IF NOT EXISTS task_workspace ON task FIELDS workspace_id;
    DEFINE INDEX IF NOT EXISTS task_epic ON task FIELDS epic_id;

    DEFINE TABLE IF NOT EXISTS time_off SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS member_id ON time_off TYPE string;
    DEFINE FIELD IF NOT EXISTS start ON time_off TYPE datetime;
    DEFINE FIELD IF NOT EXISTS end ON time_off TYPE datetime;
    DEFINE FIELD IF NOT EXISTS reason ON time_off TYPE option<string>;
    DEFINE INDEX IF NOT EXISTS time_off_member ON time_off FIELDS member_id;

    -- ==========================================================================
    -- PROJECTS, EPICS, DEPENDENCIES
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS project SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS workspace_id ON project TYPE string;
    DEFINE FIELD IF NOT EXISTS name ON project TYPE string;
    DEFINE FIELD IF NOT EXISTS description ON project TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON project TYPE datetime DEFAULT time::now();
    DEFINE INDEX IF NOT EXISTS project_workspace ON project FIELDS workspace_id;

    DEFINE TABLE IF NOT EXISTS epic SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS project_id ON epic TYPE string;
    DEFINE FIELD IF NOT EXISTS name ON epic TYPE string;
    DEFINE FIELD IF NOT EXISTS description ON epic TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS status ON epic TYPE string DEFAULT "draft";
    DEFINE FIELD IF NOT EXISTS position ON epic TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS estimate_weeks ON epic TYPE float DEFAULT 0.0;
    DEFINE FIELD IF NOT EXISTS created_at ON epic TYPE datetime DEFAULT time::now();
    DEFINE INDEX IF NOT EXISTS epic_project ON epic FIELDS project_id;

    -- One edge per ordered pair; the cycle check happens before insert.
    DEFINE TABLE IF NOT EXISTS epic_dependency SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS project_id ON epic_dependency TYPE string;
    DEFINE FIELD IF NOT EXISTS epic_id ON epic_dependency TYPE string;
    DEFINE FIELD IF NOT EXISTS depends_on_id ON epic_dependency TYPE string;
    DEFINE FIELD IF NOT EXISTS reason ON epic_dependency TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON epic_dependency TYPE datetime DEFAULT time::now();
    DEFINE INDEX IF NOT EXISTS epic_dependency_project ON epic_dependency FIELDS project_id;
    DEFINE INDEX IF NOT EXISTS epic_dependency_unique ON epic_dependency FIELDS epic_id, depends_on_id UNIQUE;

    -- ==========================================================================
    -- CONVERSATION LOG
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS conversation SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS workspace_id ON conversation TYPE string;
    DEFINE FIELD IF NOT EXISTS created_by ON conversation TYPE string;
    DEFINE FIELD IF NOT EXISTS title ON conversation TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS project_id ON conversation TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS archived ON conversation TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS created_at ON conversation TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON conversation TYPE datetime DEFAULT time::now();
    DEFINE INDEX IF NOT EXISTS conversation_workspace ON conversation FIELDS workspace_id, updated_at;

    -- Messages are immutable. seq orders messages created in the same instant.
    DEFINE TABLE IF NOT EXISTS message SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS conversation_id ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS seq ON message TYPE int;
    DEFINE FIELD IF NOT EXISTS role ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS content ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS payload_json ON message TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS input_tokens ON message TYPE option<int>;
    DEFINE FIELD IF NOT EXISTS output_tokens ON message TYPE option<int>;
    DEFINE FIELD IF NOT EXISTS model ON message TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON message TYPE datetime DEFAULT time::now();
    DEFINE INDEX IF NOT EXISTS message_conversation ON message FIELDS conversation_id, seq;

    -- ==========================================================================
    -- USAGE AND SETTINGS
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS ai_usage SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS workspace_id ON ai_usage TYPE string;
    DEFINE FIELD IF NOT EXISTS month ON ai_usage TYPE string;
    DEFINE FIELD IF NOT EXISTS input_tokens ON ai_usage TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS output_tokens ON ai_usage TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS request_count ON ai_usage TYPE int DEFAULT 0;
    DEFINE INDEX IF NOT EXISTS ai_usage_unique ON ai_usage FIELDS workspace_id, month UNIQUE;

    DEFINE TABLE IF NOT EXISTS ai_settings SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS enabled ON ai_settings TYPE bool DEFAULT true;
    DEFINE FIELD IF NOT EXISTS provider ON ai_settings TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS model ON ai_settings TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS monthly_token_limit ON ai_settings TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS updated_at ON ai_settings TYPE datetime DEFAULT time::now();
`

// dataTables lists tables in deletion order for WipeData.
var dataTables = []string{
	"message", "conversation", "ai_usage", "ai_settings",
	"epic_dependency", "task", "epic", "project", "time_off", "member", "workspace",
}
