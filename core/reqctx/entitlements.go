package reqctx

const (
	ConnectorCreate = "CONNECTOR_CREATE"
	ConnectorRead   = "CONNECTOR_READ"
	ConnectorUpdate = "CONNECTOR_UPDATE"
	ConnectorDelete = "CONNECTOR_DELETE"
	ConnectorReload = "CONNECTOR_RELOAD"

	ResourceCreate        = "RESOURCE_CREATE"
	ResourceRead          = "RESOURCE_READ"
	ResourceUpdate        = "RESOURCE_UPDATE"
	ResourceDelete        = "RESOURCE_DELETE"
	ResourceGetConnObject = "RESOURCE_GET_CONNOBJECT"
	ResourceListConnObj   = "RESOURCE_LIST_CONNOBJECT"

	RemediationList   = "REMEDIATION_LIST"
	RemediationRead   = "REMEDIATION_READ"
	RemediationRemedy = "REMEDIATION_REMEDY"
	RemediationDelete = "REMEDIATION_DELETE"

	TaskExecute = "TASK_EXECUTE"

	IntegrityCheck = "INTEGRITY_CHECK"
	IntegrityFix   = "INTEGRITY_FIX"
)

// AnyTypeEntitlement builds the per any type entitlement, e.g. USER_UPDATE or PRINTER_READ.
func AnyTypeEntitlement(anyType, op string) string {
	return anyType + "_" + op
}
