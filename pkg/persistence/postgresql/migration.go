package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id UUID PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				tenant_id VARCHAR(255) NOT NULL,
				workflow_type VARCHAR(64) NOT NULL,
				status VARCHAR(32) NOT NULL,
				input_data JSONB,
				context JSONB,
				output_data JSONB,
				error_message TEXT,
				error_details JSONB,
				retry_count INT NOT NULL DEFAULT 0,
				max_retries INT NOT NULL DEFAULT 0,
				initiator_id VARCHAR(255),
				initiator_type VARCHAR(32),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE,
				UNIQUE (tenant_id, workflow_id)
			);

			CREATE INDEX idx_workflows_tenant ON workflows(tenant_id);
			CREATE INDEX idx_workflows_tenant_status ON workflows(tenant_id, status);
			CREATE INDEX idx_workflows_tenant_type ON workflows(tenant_id, workflow_type);
			CREATE INDEX idx_workflows_created_at ON workflows(created_at);

			CREATE TABLE workflow_steps (
				id UUID PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				tenant_id VARCHAR(255) NOT NULL,
				step_name VARCHAR(255) NOT NULL,
				step_type VARCHAR(64),
				sequence_number INT NOT NULL,
				status VARCHAR(32) NOT NULL,
				input_data JSONB,
				output_data JSONB,
				compensation_data JSONB,
				error_message TEXT,
				retry_count INT NOT NULL DEFAULT 0,
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE,
				compensation_started_at TIMESTAMP WITH TIME ZONE,
				compensation_completed_at TIMESTAMP WITH TIME ZONE,
				FOREIGN KEY (tenant_id, workflow_id) REFERENCES workflows(tenant_id, workflow_id) ON DELETE CASCADE
			);

			CREATE INDEX idx_workflow_steps_workflow ON workflow_steps(tenant_id, workflow_id);
			CREATE INDEX idx_workflow_steps_status ON workflow_steps(status);
		`,
	}
}
