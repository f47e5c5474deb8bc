package outbox

const backfillRequestedSchema = `{
  "type": "object",
  "title": "BackfillRequested",
  "properties": {
    "user_id": {"type": "string"},
    "connection_id": {"type": "string", "format": "uuid"},
    "reason": {"type": "string"},
    "requested_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "connection_id", "requested_at"],
  "additionalProperties": false
}`
